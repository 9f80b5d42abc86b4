package model

import (
	"encoding/json"
	"time"
)

// QueryStat is one logged question event with optional feedback and the
// file paths the answer cited. Read by insights, written by retrieval.
type QueryStat struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProjectID  uint      `gorm:"not null;index" json:"project_id"`
	Question   string    `gorm:"type:text;not null" json:"question"`
	NoResponse bool      `json:"no_response"`
	Feedback   string    `gorm:"size:16" json:"feedback"` // "", "upvoted" or "downvoted"
	References string    `gorm:"type:text" json:"-"`      // JSON array of cited file paths
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// ReferencePaths returns the parsed citation list; empty on parse error.
func (q *QueryStat) ReferencePaths() []string {
	if q.References == "" {
		return nil
	}
	var paths []string
	_ = json.Unmarshal([]byte(q.References), &paths)
	return paths
}

// SetReferencePaths stores the citation list as JSON.
func (q *QueryStat) SetReferencePaths(paths []string) {
	if len(paths) == 0 {
		q.References = "[]"
		return
	}
	b, _ := json.Marshal(paths)
	q.References = string(b)
}
