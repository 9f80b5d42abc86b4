package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"markprompt/internal/model"
)

type FileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) GetBySourceIDAndPath(sourceID uint, path string) (*model.File, error) {
	var file model.File
	if err := r.db.Where("source_id = ? AND path = ?", sourceID, path).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query file by path failed: %w", err)
	}
	return &file, nil
}

func (r *FileRepository) ListBySourceID(sourceID uint) ([]model.File, error) {
	var list []model.File
	if err := r.db.Where("source_id = ?", sourceID).Order("path ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list files failed: %w", err)
	}
	return list, nil
}

func (r *FileRepository) ListPathsBySourceID(sourceID uint) ([]string, error) {
	var paths []string
	if err := r.db.Model(&model.File{}).Where("source_id = ?", sourceID).Pluck("path", &paths).Error; err != nil {
		return nil, fmt.Errorf("list file paths failed: %w", err)
	}
	return paths, nil
}

// ReplaceWithSections upserts the file row and replaces all of its sections
// in a single transaction. Sections are delete-then-insert, never patched, so
// stale sections cannot outlive the file version that produced them.
func (r *FileRepository) ReplaceWithSections(file *model.File, sections []model.FileSection) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var existing model.File
		lookupErr := tx.Where("source_id = ? AND path = ?", file.SourceID, file.Path).First(&existing).Error
		switch {
		case lookupErr == nil:
			file.ID = existing.ID
			file.CreatedAt = existing.CreatedAt
			if err := tx.Model(&existing).Updates(map[string]interface{}{
				"title":         file.Title,
				"content":       file.Content,
				"checksum":      file.Checksum,
				"token_count":   file.TokenCount,
				"internal_meta": file.InternalMeta,
			}).Error; err != nil {
				return fmt.Errorf("update file failed: %w", err)
			}
			if err := tx.Where("file_id = ?", existing.ID).Delete(&model.FileSection{}).Error; err != nil {
				return fmt.Errorf("delete stale sections failed: %w", err)
			}
		case errors.Is(lookupErr, gorm.ErrRecordNotFound):
			if err := tx.Create(file).Error; err != nil {
				return fmt.Errorf("create file failed: %w", err)
			}
		default:
			return fmt.Errorf("lookup file failed: %w", lookupErr)
		}

		if len(sections) == 0 {
			return nil
		}
		for i := range sections {
			sections[i].FileID = file.ID
		}
		if err := tx.Create(&sections).Error; err != nil {
			return fmt.Errorf("create sections failed: %w", err)
		}
		return nil
	})
}

// DeleteByPathsWithChecksums removes the given files (and their sections) and
// writes the new full checksum map in the same transaction. Running both in
// one transaction makes the "checksums updated but files not deleted" state
// unrepresentable; the call is idempotent and safe to retry.
func (r *FileRepository) DeleteByPathsWithChecksums(projectID, sourceID uint, paths []string, checksums map[string]string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if len(paths) > 0 {
			var fileIDs []uint
			if err := tx.Model(&model.File{}).
				Where("source_id = ? AND path IN ?", sourceID, paths).
				Pluck("id", &fileIDs).Error; err != nil {
				return fmt.Errorf("lookup files for delete failed: %w", err)
			}
			if len(fileIDs) > 0 {
				if err := tx.Where("file_id IN ?", fileIDs).Delete(&model.FileSection{}).Error; err != nil {
					return fmt.Errorf("delete sections for removed files failed: %w", err)
				}
				if err := tx.Where("id IN ?", fileIDs).Delete(&model.File{}).Error; err != nil {
					return fmt.Errorf("delete removed files failed: %w", err)
				}
			}
		}

		checksumRow := model.ChecksumMap{
			ProjectID: projectID,
			SourceID:  sourceID,
			UpdatedAt: time.Now(),
		}
		checksumRow.SetChecksumEntries(checksums)
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "source_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"checksums", "updated_at"}),
		}).Create(&checksumRow).Error; err != nil {
			return fmt.Errorf("write checksum map failed: %w", err)
		}
		return nil
	})
}

// DeleteBySourceID removes all files and sections for a source (source
// deletion cascade).
func (r *FileRepository) DeleteBySourceID(sourceID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var fileIDs []uint
		if err := tx.Model(&model.File{}).Where("source_id = ?", sourceID).Pluck("id", &fileIDs).Error; err != nil {
			return fmt.Errorf("lookup files for source delete failed: %w", err)
		}
		if len(fileIDs) > 0 {
			if err := tx.Where("file_id IN ?", fileIDs).Delete(&model.FileSection{}).Error; err != nil {
				return fmt.Errorf("delete sections for source failed: %w", err)
			}
		}
		if err := tx.Where("source_id = ?", sourceID).Delete(&model.File{}).Error; err != nil {
			return fmt.Errorf("delete files for source failed: %w", err)
		}
		return nil
	})
}

// SumTokenCountsByTeamID aggregates embedded token counts across all of a
// team's projects inside the given window (embedding credit usage).
func (r *FileRepository) SumTokenCountsByTeamID(teamID uint, since, until time.Time) (int64, error) {
	var total int64
	err := r.db.Model(&model.File{}).
		Select("COALESCE(SUM(files.token_count), 0)").
		Joins("JOIN sources ON sources.id = files.source_id").
		Joins("JOIN projects ON projects.id = sources.project_id").
		Where("projects.team_id = ? AND files.updated_at >= ? AND files.updated_at < ?", teamID, since, until).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum token counts failed: %w", err)
	}
	return total, nil
}
