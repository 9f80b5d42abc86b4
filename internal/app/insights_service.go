package app

import (
	"context"
	"sort"
	"time"

	"markprompt/internal/model"
	"markprompt/internal/repository"
)

// ReferenceCount is one cited file path with its citation count.
type ReferenceCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// InsightsService reads query stats for the dashboard: recent questions and
// the most cited files.
type InsightsService struct {
	stats *repository.QueryStatRepository
}

func NewInsightsService(stats *repository.QueryStatRepository) *InsightsService {
	return &InsightsService{stats: stats}
}

func (s *InsightsService) RecentQueries(ctx context.Context, projectID uint, since time.Time, limit int) ([]model.QueryStat, error) {
	if projectID == 0 {
		return nil, ErrInvalidInput
	}
	return s.stats.ListByProjectIDSince(projectID, since, limit)
}

// MostCitedReferences aggregates citation counts over recent queries,
// most cited first, ties by path for a stable order.
func (s *InsightsService) MostCitedReferences(ctx context.Context, projectID uint, since time.Time, limit int) ([]ReferenceCount, error) {
	if projectID == 0 {
		return nil, ErrInvalidInput
	}
	stats, err := s.stats.ListByProjectIDSince(projectID, since, 500)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for i := range stats {
		for _, path := range stats[i].ReferencePaths() {
			counts[path]++
		}
	}
	refs := make([]ReferenceCount, 0, len(counts))
	for path, count := range counts {
		refs = append(refs, ReferenceCount{Path: path, Count: count})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Count != refs[j].Count {
			return refs[i].Count > refs[j].Count
		}
		return refs[i].Path < refs[j].Path
	})
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}
