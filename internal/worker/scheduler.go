package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"markprompt/internal/app"
	"markprompt/internal/connector"
	"markprompt/internal/model"
)

type nextSourceLister interface {
	ListNextForSync(limit int) ([]model.Source, error)
}

// Scheduler periodically triggers syncs for the sources most overdue for
// one: never-synced sources first, then oldest last run. Sources already
// running are skipped by the queue's single-running-job semantics.
type Scheduler struct {
	sources   nextSourceLister
	syncs     *app.SyncService
	interval  time.Duration
	batchSize int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(sources nextSourceLister, syncs *app.SyncService, interval time.Duration, batchSize int) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Scheduler{
		sources:   sources,
		syncs:     syncs,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	schedulerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-schedulerCtx.Done():
				return
			case <-ticker.C:
				s.tick(schedulerCtx)
			}
		}
	}()
}

func (s *Scheduler) tick(ctx context.Context) {
	sources, err := s.sources.ListNextForSync(s.batchSize)
	if err != nil {
		log.Printf("scheduler list sources failed: %v", err)
		return
	}
	for i := range sources {
		_, created, err := s.syncs.StartScheduled(ctx, &sources[i])
		if err != nil {
			if errors.Is(err, connector.ErrNotSyncable) {
				continue
			}
			log.Printf("scheduler trigger source %d failed: %v", sources[i].ID, err)
			continue
		}
		if created {
			log.Printf("scheduler triggered sync for source %d", sources[i].ID)
		}
	}
}

func (s *Scheduler) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
