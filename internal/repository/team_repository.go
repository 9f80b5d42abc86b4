package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"markprompt/internal/model"
)

type TeamRepository struct {
	db *gorm.DB
}

func NewTeamRepository(db *gorm.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

func (r *TeamRepository) GetByID(id uint) (*model.Team, error) {
	var team model.Team
	if err := r.db.First(&team, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query team by id failed: %w", err)
	}
	return &team, nil
}

func (r *TeamRepository) GetByProjectID(projectID uint) (*model.Team, error) {
	var team model.Team
	err := r.db.Table("teams").
		Joins("JOIN projects ON projects.team_id = teams.id").
		Where("projects.id = ?", projectID).
		First(&team).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query team by project failed: %w", err)
	}
	return &team, nil
}
