package model

import (
	"encoding/json"
	"time"
)

type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusSucceeded SyncStatus = "succeeded"
	SyncStatusFailed    SyncStatus = "failed"
	SyncStatusCanceled  SyncStatus = "canceled"
)

// Terminal reports whether the status is final. Terminal statuses are
// immutable once set. There is no separate queued status: get-or-create
// admits a job directly as running, so a row is either running or terminal.
func (s SyncStatus) Terminal() bool {
	return s == SyncStatusSucceeded || s == SyncStatusFailed || s == SyncStatusCanceled
}

// SyncQueue is one tracked execution of pulling content from a Source.
//
// RunningKey holds the source id while the job is running and is NULL
// otherwise. The unique index on it is what enforces "at most one running
// job per source": MySQL allows any number of NULLs but only one row per
// non-NULL value.
type SyncQueue struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	SourceID   uint       `gorm:"not null;index" json:"source_id"`
	ProjectID  uint       `gorm:"not null;index" json:"project_id"`
	Status     SyncStatus `gorm:"size:16;not null" json:"status"`
	RunningKey *uint      `gorm:"uniqueIndex" json:"-"`
	Log        string     `gorm:"type:mediumtext" json:"-"` // JSON array of SyncLogEntry
	CreatedAt  time.Time  `json:"created_at"`
	EndedAt    *time.Time `json:"ended_at"`
}

// SyncLogEntry is one ordered entry in a sync job's append-only log.
type SyncLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // "info" or "error"
	Message   string    `json:"message"`
}

// LogEntries returns the parsed log; empty on parse error.
func (q *SyncQueue) LogEntries() []SyncLogEntry {
	if q.Log == "" {
		return nil
	}
	var entries []SyncLogEntry
	_ = json.Unmarshal([]byte(q.Log), &entries)
	return entries
}

// SetLogEntries stores the log as JSON.
func (q *SyncQueue) SetLogEntries(entries []SyncLogEntry) {
	if len(entries) == 0 {
		q.Log = "[]"
		return
	}
	b, _ := json.Marshal(entries)
	q.Log = string(b)
}
