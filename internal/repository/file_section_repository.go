package repository

import (
	"fmt"

	"gorm.io/gorm"

	"markprompt/internal/model"
)

type FileSectionRepository struct {
	db *gorm.DB
}

func NewFileSectionRepository(db *gorm.DB) *FileSectionRepository {
	return &FileSectionRepository{db: db}
}

// SectionWithPath is a section joined with its owning file's path, the shape
// the retrieval engine ranks over.
type SectionWithPath struct {
	model.FileSection
	Path string `json:"path"`
}

func (r *FileSectionRepository) ListByProjectID(projectID uint) ([]SectionWithPath, error) {
	var rows []SectionWithPath
	err := r.db.Table("file_sections").
		Select("file_sections.*, files.path AS path").
		Joins("JOIN files ON files.id = file_sections.file_id").
		Joins("JOIN sources ON sources.id = files.source_id").
		Where("sources.project_id = ?", projectID).
		Order("files.path ASC, file_sections.seq_index ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list sections by project failed: %w", err)
	}
	return rows, nil
}

func (r *FileSectionRepository) ListByFileID(fileID uint) ([]model.FileSection, error) {
	var sections []model.FileSection
	if err := r.db.Where("file_id = ?", fileID).Order("seq_index ASC").Find(&sections).Error; err != nil {
		return nil, fmt.Errorf("list sections by file failed: %w", err)
	}
	return sections, nil
}
