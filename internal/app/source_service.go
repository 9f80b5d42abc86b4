package app

import (
	"context"
	"encoding/json"
	"strings"

	"markprompt/internal/connector"
	"markprompt/internal/model"
	"markprompt/internal/repository"
)

// SourceService is the CRUD surface for content origins plus the push-style
// ingestion entry (file and API uploads).
type SourceService struct {
	sources   *repository.SourceRepository
	files     *repository.FileRepository
	checksums *repository.ChecksumRepository
	jobs      *repository.SyncQueueRepository
	ingest    *IngestService
}

func NewSourceService(
	sources *repository.SourceRepository,
	files *repository.FileRepository,
	checksums *repository.ChecksumRepository,
	jobs *repository.SyncQueueRepository,
	ingest *IngestService,
) *SourceService {
	return &SourceService{
		sources:   sources,
		files:     files,
		checksums: checksums,
		jobs:      jobs,
		ingest:    ingest,
	}
}

// Create validates the typed config for the source type and persists the
// source. Invalid or unknown configs are rejected at this boundary.
func (s *SourceService) Create(ctx context.Context, projectID uint, sourceType model.SourceType, rawConfig json.RawMessage) (*model.Source, error) {
	if projectID == 0 || sourceType == "" {
		return nil, ErrInvalidInput
	}
	src := &model.Source{
		ProjectID: projectID,
		Type:      sourceType,
		Config:    string(rawConfig),
	}
	if src.Config == "" {
		src.Config = "{}"
	}
	if _, err := model.DecodeSourceConfig(src); err != nil {
		return nil, ErrInvalidInput
	}
	if err := s.sources.Create(src); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *SourceService) List(ctx context.Context, projectID uint) ([]model.Source, error) {
	if projectID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sources.ListByProjectID(projectID)
}

// Delete removes a source and cascades: files, sections, sync history and
// the checksum map all go with it.
func (s *SourceService) Delete(ctx context.Context, projectID, sourceID uint) error {
	src, err := s.sources.GetByIDAndProjectID(sourceID, projectID)
	if err != nil {
		return err
	}
	if src == nil {
		return ErrSourceNotFound
	}
	if err := s.files.DeleteBySourceID(sourceID); err != nil {
		return err
	}
	if err := s.checksums.Delete(projectID, sourceID); err != nil {
		return err
	}
	if err := s.jobs.DeleteBySourceID(sourceID); err != nil {
		return err
	}
	return s.sources.DeleteByIDAndProjectID(sourceID, projectID)
}

// ListFiles returns a source's ingested files.
func (s *SourceService) ListFiles(ctx context.Context, projectID, sourceID uint) ([]model.File, error) {
	src, err := s.sources.GetByIDAndProjectID(sourceID, projectID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, ErrSourceNotFound
	}
	return s.files.ListBySourceID(sourceID)
}

// UploadFile ingests one pushed file through the standard pipeline. Uploads
// are additive: nothing else in the source is deleted.
func (s *SourceService) UploadFile(ctx context.Context, projectID, sourceID uint, path, title, content string) (*IngestReport, []IngestionError, error) {
	path = strings.TrimSpace(path)
	if projectID == 0 || path == "" {
		return nil, nil, ErrInvalidInput
	}
	src, err := s.sources.GetByIDAndProjectID(sourceID, projectID)
	if err != nil {
		return nil, nil, err
	}
	if src == nil {
		return nil, nil, ErrSourceNotFound
	}
	switch src.Type {
	case model.SourceTypeFileUpload, model.SourceTypeAPIUpload, model.SourceTypeMotif:
	default:
		return nil, nil, ErrInvalidInput
	}

	records := []connector.ContentRecord{{
		Path:    path,
		Title:   title,
		Content: content,
	}}
	return s.ingest.Ingest(ctx, src, records, IngestOptions{DeleteMissing: false})
}
