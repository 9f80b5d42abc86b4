package model

import (
	"encoding/json"
	"time"
)

// FileSection is an embedded chunk of a File, the unit of retrieval.
// Embedding is stored as a JSON array of float32 for portability. Sections
// for a file are always replaced wholesale when the file's checksum changes.
type FileSection struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FileID     uint      `gorm:"not null;index" json:"file_id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Embedding  string    `gorm:"type:mediumtext" json:"-"`
	SeqIndex   int       `gorm:"not null" json:"seq_index"`
	Heading    string    `gorm:"size:256" json:"heading"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (s *FileSection) EmbeddingVector() []float32 {
	if s.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(s.Embedding), &v)
	return v
}

// SetEmbedding stores the embedding as JSON.
func (s *FileSection) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		s.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	s.Embedding = string(b)
}
