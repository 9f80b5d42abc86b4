package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"markprompt/internal/model"
)

type SyncQueueRepository struct {
	db *gorm.DB
}

func NewSyncQueueRepository(db *gorm.DB) *SyncQueueRepository {
	return &SyncQueueRepository{db: db}
}

func (r *SyncQueueRepository) GetByID(id string) (*model.SyncQueue, error) {
	var job model.SyncQueue
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query sync job failed: %w", err)
	}
	return &job, nil
}

func (r *SyncQueueRepository) GetRunningBySourceID(sourceID uint) (*model.SyncQueue, error) {
	var job model.SyncQueue
	err := r.db.Where("source_id = ? AND status = ?", sourceID, model.SyncStatusRunning).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query running sync job failed: %w", err)
	}
	return &job, nil
}

// CreateRunning inserts a job already in running state. The unique index on
// running_key rejects a second running job for the same source; callers
// detect that with gorm.ErrDuplicatedKey and re-select the winner.
func (r *SyncQueueRepository) CreateRunning(job *model.SyncQueue) error {
	job.Status = model.SyncStatusRunning
	key := job.SourceID
	job.RunningKey = &key
	if job.Log == "" {
		job.Log = "[]"
	}
	if err := r.db.Create(job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return gorm.ErrDuplicatedKey
		}
		return fmt.Errorf("create sync job failed: %w", err)
	}
	return nil
}

// AppendLog appends one entry to the job's ordered log. The row is locked for
// the read-modify-write so concurrent appends cannot drop entries.
func (r *SyncQueueRepository) AppendLog(id string, entry model.SyncLogEntry) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var job model.SyncQueue
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&job).Error; err != nil {
			return fmt.Errorf("lock sync job for log append failed: %w", err)
		}
		entries := append(job.LogEntries(), entry)
		job.SetLogEntries(entries)
		if err := tx.Model(&model.SyncQueue{}).Where("id = ?", id).
			Update("log", job.Log).Error; err != nil {
			return fmt.Errorf("append sync log failed: %w", err)
		}
		return nil
	})
}

// MarkEnded moves a running job to a terminal status, clearing the running
// key and stamping ended_at. Returns false without error when the job was
// already terminal (the guard only matches running rows), which gives
// callers no-op semantics for double completion.
func (r *SyncQueueRepository) MarkEnded(id string, status model.SyncStatus) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("status %q is not terminal", status)
	}
	now := time.Now()
	res := r.db.Model(&model.SyncQueue{}).
		Where("id = ? AND status = ?", id, model.SyncStatusRunning).
		Updates(map[string]interface{}{
			"status":      status,
			"ended_at":    now,
			"running_key": nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark sync job ended failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *SyncQueueRepository) GetLatestBySourceID(sourceID uint) (*model.SyncQueue, error) {
	var job model.SyncQueue
	err := r.db.Where("source_id = ?", sourceID).Order("created_at DESC").First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest sync job failed: %w", err)
	}
	return &job, nil
}

func (r *SyncQueueRepository) ListBySourceID(sourceID uint, limit, offset int) ([]model.SyncQueue, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var jobs []model.SyncQueue
	err := r.db.Where("source_id = ?", sourceID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("list sync jobs failed: %w", err)
	}
	return jobs, nil
}

func (r *SyncQueueRepository) DeleteBySourceID(sourceID uint) error {
	if err := r.db.Where("source_id = ?", sourceID).Delete(&model.SyncQueue{}).Error; err != nil {
		return fmt.Errorf("delete sync jobs for source failed: %w", err)
	}
	return nil
}
