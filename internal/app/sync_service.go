package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"markprompt/internal/connector"
	"markprompt/internal/model"
	"markprompt/internal/platform/rabbitmq"
)

const (
	LogLevelInfo  = "info"
	LogLevelError = "error"
)

type jobStore interface {
	GetByID(id string) (*model.SyncQueue, error)
	GetRunningBySourceID(sourceID uint) (*model.SyncQueue, error)
	CreateRunning(job *model.SyncQueue) error
	AppendLog(id string, entry model.SyncLogEntry) error
	MarkEnded(id string, status model.SyncStatus) (bool, error)
	GetLatestBySourceID(sourceID uint) (*model.SyncQueue, error)
	ListBySourceID(sourceID uint, limit, offset int) ([]model.SyncQueue, error)
}

type syncSourceStore interface {
	GetByID(id uint) (*model.Source, error)
	GetByIDAndProjectID(id, projectID uint) (*model.Source, error)
	ListByType(sourceType model.SourceType) ([]model.Source, error)
}

type triggerPublisher interface {
	PublishTrigger(ctx context.Context, trigger rabbitmq.SyncTrigger) error
}

type connectorFactory interface {
	ForSource(src *model.Source) (connector.Connector, error)
}

type upstreamLifecycle interface {
	DeleteConnection(ctx context.Context, integrationID, connectionID string) error
}

// SyncService owns the sync queue state machine
// (running to succeeded/failed/canceled) and executes sync runs.
type SyncService struct {
	sources    syncSourceStore
	jobs       jobStore
	publisher  triggerPublisher
	connectors connectorFactory
	ingest     *IngestService
	nango      upstreamLifecycle
}

func NewSyncService(
	sources syncSourceStore,
	jobs jobStore,
	publisher triggerPublisher,
	connectors connectorFactory,
	ingest *IngestService,
	nango upstreamLifecycle,
) *SyncService {
	return &SyncService{
		sources:    sources,
		jobs:       jobs,
		publisher:  publisher,
		connectors: connectors,
		ingest:     ingest,
		nango:      nango,
	}
}

// Trigger starts a sync for a source, or returns the already-running job.
// The bool reports whether a new job was created.
func (s *SyncService) Trigger(ctx context.Context, projectID, sourceID uint) (*model.SyncQueue, bool, error) {
	src, err := s.sources.GetByIDAndProjectID(sourceID, projectID)
	if err != nil {
		return nil, false, err
	}
	if src == nil {
		return nil, false, ErrSourceNotFound
	}
	return s.start(ctx, src)
}

// TriggerByConnection starts a sync for the Nango source matching an
// integration/connection pair, the shape webhook callers send.
func (s *SyncService) TriggerByConnection(ctx context.Context, integrationID, connectionID string) (*model.SyncQueue, bool, error) {
	sources, err := s.sources.ListByType(model.SourceTypeNango)
	if err != nil {
		return nil, false, err
	}
	for i := range sources {
		decoded, err := model.DecodeSourceConfig(&sources[i])
		if err != nil {
			continue
		}
		cfg, ok := decoded.(model.NangoSourceConfig)
		if !ok {
			continue
		}
		if cfg.IntegrationID == integrationID && cfg.ConnectionID == connectionID {
			return s.start(ctx, &sources[i])
		}
	}
	return nil, false, ErrSourceNotFound
}

// StartScheduled is the scheduler entry point; the source is already loaded.
func (s *SyncService) StartScheduled(ctx context.Context, src *model.Source) (*model.SyncQueue, bool, error) {
	return s.start(ctx, src)
}

func (s *SyncService) start(ctx context.Context, src *model.Source) (*model.SyncQueue, bool, error) {
	switch src.Type {
	case model.SourceTypeFileUpload, model.SourceTypeAPIUpload, model.SourceTypeMotif:
		return nil, false, fmt.Errorf("source %d: %w", src.ID, connector.ErrNotSyncable)
	}

	job, created, err := s.getOrCreateRunning(src)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return job, false, nil
	}

	s.Log(ctx, job.ID, LogLevelInfo, "sync started")
	if err := s.publisher.PublishTrigger(ctx, rabbitmq.SyncTrigger{
		JobID:     job.ID,
		SourceID:  src.ID,
		ProjectID: src.ProjectID,
	}); err != nil {
		// Nothing will execute the job; fail it so the source is not wedged
		// behind a running row forever.
		s.Log(ctx, job.ID, LogLevelError, fmt.Sprintf("dispatch failed: %v", err))
		if _, endErr := s.jobs.MarkEnded(job.ID, model.SyncStatusFailed); endErr != nil {
			log.Printf("mark job %s failed after dispatch error: %v", job.ID, endErr)
		}
		return nil, false, fmt.Errorf("dispatch sync job failed: %w", err)
	}
	return job, true, nil
}

// getOrCreateRunning returns the running job for the source or atomically
// creates one. Two concurrent triggers cannot both create: the loser of the
// unique-index race re-selects the winner's row.
func (s *SyncService) getOrCreateRunning(src *model.Source) (*model.SyncQueue, bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		existing, err := s.jobs.GetRunningBySourceID(src.ID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}

		job := &model.SyncQueue{
			ID:        uuid.NewString(),
			SourceID:  src.ID,
			ProjectID: src.ProjectID,
			CreatedAt: time.Now(),
		}
		err = s.jobs.CreateRunning(job)
		if err == nil {
			return job, true, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return nil, false, err
	}
	return nil, false, fmt.Errorf("get-or-create running job for source %d did not settle", src.ID)
}

// Log appends a job log entry. Logging is best-effort telemetry: failures
// are reported to the process log and swallowed, never the caller.
func (s *SyncService) Log(ctx context.Context, jobID, level, message string) {
	entry := model.SyncLogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	}
	if err := s.jobs.AppendLog(jobID, entry); err != nil {
		log.Printf("append log to sync job %s failed: %v", jobID, err)
	}
}

// MarkEnded moves a running job to a terminal status. Calling it on an
// already-terminal job is a no-op that returns the current state.
func (s *SyncService) MarkEnded(ctx context.Context, jobID string, status model.SyncStatus) (*model.SyncQueue, error) {
	if _, err := s.jobs.MarkEnded(jobID, status); err != nil {
		return nil, err
	}
	job, err := s.jobs.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Cancel marks a running job canceled. For Nango sources the upstream
// connection delete is fired asynchronously and only logged on failure:
// local state is the source of truth, upstream teardown is best-effort.
func (s *SyncService) Cancel(ctx context.Context, projectID uint, jobID string) (*model.SyncQueue, error) {
	job, err := s.jobs.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.ProjectID != projectID {
		return nil, ErrJobNotFound
	}
	if job.Status.Terminal() {
		return job, nil
	}

	flipped, err := s.jobs.MarkEnded(jobID, model.SyncStatusCanceled)
	if err != nil {
		return nil, err
	}
	if flipped {
		s.Log(ctx, jobID, LogLevelInfo, "sync canceled by user")
		s.cancelUpstream(job.SourceID)
	}
	return s.jobs.GetByID(jobID)
}

func (s *SyncService) cancelUpstream(sourceID uint) {
	src, err := s.sources.GetByID(sourceID)
	if err != nil || src == nil || src.Type != model.SourceTypeNango {
		return
	}
	decoded, err := model.DecodeSourceConfig(src)
	if err != nil {
		log.Printf("decode nango config for source %d failed: %v", sourceID, err)
		return
	}
	cfg, ok := decoded.(model.NangoSourceConfig)
	if !ok || s.nango == nil {
		return
	}
	s.fireAndForget(fmt.Sprintf("delete nango connection %s", cfg.ConnectionID), func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.nango.DeleteConnection(ctx, cfg.IntegrationID, cfg.ConnectionID)
	})
}

// fireAndForget runs a side call off the critical path; failures are logged,
// not swallowed silently.
func (s *SyncService) fireAndForget(name string, fn func() error) {
	go func() {
		if err := fn(); err != nil {
			log.Printf("%s failed: %v", name, err)
		}
	}()
}

// Run executes one sync job end to end: fetch, ingest, terminal status.
// It is invoked by the queue worker.
func (s *SyncService) Run(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetByID(jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}
	if job.Status != model.SyncStatusRunning {
		// Stale trigger for a finished or canceled job.
		return nil
	}

	src, err := s.sources.GetByID(job.SourceID)
	if err != nil {
		return err
	}
	if src == nil {
		s.Log(ctx, jobID, LogLevelError, "source no longer exists")
		return s.end(ctx, jobID, model.SyncStatusFailed)
	}

	conn, err := s.connectors.ForSource(src)
	if err != nil {
		s.Log(ctx, jobID, LogLevelError, fmt.Sprintf("connector setup failed: %v", err))
		return s.end(ctx, jobID, model.SyncStatusFailed)
	}

	s.Log(ctx, jobID, LogLevelInfo, "fetching content")
	result, err := conn.Fetch(ctx)
	if err != nil {
		s.Log(ctx, jobID, LogLevelError, fmt.Sprintf("fetch failed: %v", err))
		return s.end(ctx, jobID, model.SyncStatusFailed)
	}
	if result.Capped {
		s.Log(ctx, jobID, LogLevelInfo, "payload size cap reached; remaining files were skipped")
	}
	s.Log(ctx, jobID, LogLevelInfo, fmt.Sprintf("fetched %d records", len(result.Records)))

	opts := IngestOptions{
		DeleteMissing: true,
		Canceled: func(pollCtx context.Context) bool {
			current, err := s.jobs.GetByID(jobID)
			return err == nil && current != nil && current.Status == model.SyncStatusCanceled
		},
	}
	report, ingestErrs, err := s.ingest.Ingest(ctx, src, result.Records, opts)
	if err != nil {
		s.Log(ctx, jobID, LogLevelError, fmt.Sprintf("ingestion failed: %v", err))
		return s.end(ctx, jobID, model.SyncStatusFailed)
	}

	quotaHit := false
	for _, ingestErr := range ingestErrs {
		s.Log(ctx, jobID, LogLevelError, ingestErr.Error())
		if ingestErr.QuotaExceeded {
			quotaHit = true
		}
	}

	if report.Canceled {
		s.Log(ctx, jobID, LogLevelInfo, "cancellation observed; stopping")
		return nil
	}

	s.Log(ctx, jobID, LogLevelInfo, fmt.Sprintf(
		"embedded %d files, skipped %d unchanged, deleted %d", report.Embedded, report.Skipped, report.Deleted))

	if quotaHit {
		s.Log(ctx, jobID, LogLevelError, "embedding quota exceeded; run stopped early, progress kept")
		return s.end(ctx, jobID, model.SyncStatusFailed)
	}
	return s.end(ctx, jobID, model.SyncStatusSucceeded)
}

func (s *SyncService) end(ctx context.Context, jobID string, status model.SyncStatus) error {
	if _, err := s.jobs.MarkEnded(jobID, status); err != nil {
		return err
	}
	return nil
}

// Latest returns the most recent job for a source.
func (s *SyncService) Latest(ctx context.Context, projectID, sourceID uint) (*model.SyncQueue, error) {
	src, err := s.sources.GetByIDAndProjectID(sourceID, projectID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, ErrSourceNotFound
	}
	return s.jobs.GetLatestBySourceID(sourceID)
}

// Get returns one job with its full log.
func (s *SyncService) Get(ctx context.Context, projectID uint, jobID string) (*model.SyncQueue, error) {
	job, err := s.jobs.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.ProjectID != projectID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// List returns a page of a source's job history, newest first.
func (s *SyncService) List(ctx context.Context, projectID, sourceID uint, limit, offset int) ([]model.SyncQueue, error) {
	src, err := s.sources.GetByIDAndProjectID(sourceID, projectID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, ErrSourceNotFound
	}
	return s.jobs.ListBySourceID(sourceID, limit, offset)
}
