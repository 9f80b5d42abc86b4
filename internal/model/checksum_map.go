package model

import (
	"encoding/json"
	"time"
)

// ChecksumMap is the per-source diffing oracle: a path -> sha256 hex mapping
// stored as one JSON blob. After any successful sync its keys equal exactly
// the set of persisted file paths for the source.
type ChecksumMap struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;uniqueIndex:idx_checksums_project_source,priority:1" json:"project_id"`
	SourceID  uint      `gorm:"not null;uniqueIndex:idx_checksums_project_source,priority:2" json:"source_id"`
	Checksums string    `gorm:"type:mediumtext" json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChecksumEntries returns the parsed map; empty on parse error.
func (m *ChecksumMap) ChecksumEntries() map[string]string {
	if m.Checksums == "" {
		return map[string]string{}
	}
	parsed := map[string]string{}
	_ = json.Unmarshal([]byte(m.Checksums), &parsed)
	return parsed
}

// SetChecksumEntries stores the full map as JSON (full replace, no patching).
func (m *ChecksumMap) SetChecksumEntries(entries map[string]string) {
	if len(entries) == 0 {
		m.Checksums = "{}"
		return
	}
	b, _ := json.Marshal(entries)
	m.Checksums = string(b)
}
