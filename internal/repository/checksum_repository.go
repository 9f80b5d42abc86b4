package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"markprompt/internal/model"
)

// ChecksumRepository reads the per-source checksum blob. Writes go through
// FileRepository.DeleteByPathsWithChecksums so a checksum map can never be
// written outside the transaction that reconciles the files it describes.
type ChecksumRepository struct {
	db *gorm.DB
}

func NewChecksumRepository(db *gorm.DB) *ChecksumRepository {
	return &ChecksumRepository{db: db}
}

func (r *ChecksumRepository) Get(projectID, sourceID uint) (map[string]string, error) {
	var row model.ChecksumMap
	err := r.db.Where("project_id = ? AND source_id = ?", projectID, sourceID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("query checksum map failed: %w", err)
	}
	return row.ChecksumEntries(), nil
}

func (r *ChecksumRepository) Delete(projectID, sourceID uint) error {
	err := r.db.Where("project_id = ? AND source_id = ?", projectID, sourceID).
		Delete(&model.ChecksumMap{}).Error
	if err != nil {
		return fmt.Errorf("delete checksum map failed: %w", err)
	}
	return nil
}
