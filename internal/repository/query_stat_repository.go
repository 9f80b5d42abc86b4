package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"markprompt/internal/model"
)

type QueryStatRepository struct {
	db *gorm.DB
}

func NewQueryStatRepository(db *gorm.DB) *QueryStatRepository {
	return &QueryStatRepository{db: db}
}

func (r *QueryStatRepository) Create(stat *model.QueryStat) error {
	if err := r.db.Create(stat).Error; err != nil {
		return fmt.Errorf("create query stat failed: %w", err)
	}
	return nil
}

// CountByTeamIDSince counts answered queries across all of a team's projects
// inside the window (completion usage).
func (r *QueryStatRepository) CountByTeamIDSince(teamID uint, since, until time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.QueryStat{}).
		Joins("JOIN projects ON projects.id = query_stats.project_id").
		Where("projects.team_id = ? AND query_stats.created_at >= ? AND query_stats.created_at < ?", teamID, since, until).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count query stats failed: %w", err)
	}
	return count, nil
}

func (r *QueryStatRepository) ListByProjectIDSince(projectID uint, since time.Time, limit int) ([]model.QueryStat, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var stats []model.QueryStat
	err := r.db.Where("project_id = ? AND created_at >= ?", projectID, since).
		Order("created_at DESC").
		Limit(limit).
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("list query stats failed: %w", err)
	}
	return stats, nil
}
