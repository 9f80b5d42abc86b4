package model

import "time"

// File is one ingested content unit from a Source, keyed by path.
// Checksum is the sha256 hex digest of the raw content; the ingestion
// pipeline skips re-embedding when it is unchanged.
type File struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SourceID     uint      `gorm:"not null;uniqueIndex:idx_files_source_path,priority:1" json:"source_id"`
	Path         string    `gorm:"size:512;not null;uniqueIndex:idx_files_source_path,priority:2" json:"path"`
	Title        string    `gorm:"size:256" json:"title"`
	Content      string    `gorm:"type:mediumtext" json:"-"`
	Checksum     string    `gorm:"size:64;not null" json:"checksum"`
	TokenCount   int       `json:"token_count"`
	InternalMeta string    `gorm:"type:text" json:"-"` // connector-specific ids, JSON
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
