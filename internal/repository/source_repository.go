package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"markprompt/internal/model"
)

type SourceRepository struct {
	db *gorm.DB
}

func NewSourceRepository(db *gorm.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

func (r *SourceRepository) Create(src *model.Source) error {
	if err := r.db.Create(src).Error; err != nil {
		return fmt.Errorf("create source failed: %w", err)
	}
	return nil
}

func (r *SourceRepository) GetByID(id uint) (*model.Source, error) {
	var src model.Source
	if err := r.db.First(&src, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query source by id failed: %w", err)
	}
	return &src, nil
}

func (r *SourceRepository) GetByIDAndProjectID(id, projectID uint) (*model.Source, error) {
	var src model.Source
	if err := r.db.Where("id = ? AND project_id = ?", id, projectID).First(&src).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query source failed: %w", err)
	}
	return &src, nil
}

func (r *SourceRepository) ListByProjectID(projectID uint) ([]model.Source, error) {
	var list []model.Source
	if err := r.db.Where("project_id = ?", projectID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list sources failed: %w", err)
	}
	return list, nil
}

func (r *SourceRepository) ListByType(sourceType model.SourceType) ([]model.Source, error) {
	var list []model.Source
	if err := r.db.Where("type = ?", sourceType).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list sources by type failed: %w", err)
	}
	return list, nil
}

func (r *SourceRepository) DeleteByIDAndProjectID(id, projectID uint) error {
	if err := r.db.Where("id = ? AND project_id = ?", id, projectID).Delete(&model.Source{}).Error; err != nil {
		return fmt.Errorf("delete source failed: %w", err)
	}
	return nil
}

// ListNextForSync returns the syncable sources most overdue for a sync:
// never-synced sources first, then by oldest last job end. Sources with a
// running job are excluded.
func (r *SourceRepository) ListNextForSync(limit int) ([]model.Source, error) {
	if limit <= 0 {
		limit = 10
	}
	var list []model.Source
	err := r.db.Raw(`
		SELECT sources.*
		FROM sources
		LEFT JOIN (
			SELECT source_id, MAX(ended_at) AS last_ended
			FROM sync_queues
			GROUP BY source_id
		) latest ON latest.source_id = sources.id
		WHERE sources.type IN (?, ?, ?)
		AND NOT EXISTS (
			SELECT 1 FROM sync_queues running
			WHERE running.source_id = sources.id AND running.status = ?
		)
		ORDER BY latest.last_ended IS NULL DESC, latest.last_ended ASC
		LIMIT ?`,
		model.SourceTypeGitHub, model.SourceTypeWebsite, model.SourceTypeNango,
		model.SyncStatusRunning, limit,
	).Scan(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list next sources for sync failed: %w", err)
	}
	return list, nil
}
