package app

import (
	"context"
	"log"
	"math"
	"sort"
	"strings"

	"markprompt/internal/model"
	"markprompt/internal/repository"
)

type sectionStore interface {
	ListByProjectID(projectID uint) ([]repository.SectionWithPath, error)
}

type queryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type statStore interface {
	Create(stat *model.QueryStat) error
}

// SectionMatch is one ranked retrieval result.
type SectionMatch struct {
	Path     string  `json:"path"`
	Heading  string  `json:"heading,omitempty"`
	Content  string  `json:"content"`
	SeqIndex int     `json:"seq_index"`
	Score    float32 `json:"score"`
}

// MatchInput configures one semantic section match.
type MatchInput struct {
	ProjectID  uint
	Query      string
	MinScore   float64 // <= 0 uses the configured default
	MaxMatches int     // <= 0 uses the default; always clamped to the hard max
}

// RetrievalService ranks stored file sections against a query, either
// semantically (embedding similarity) or lexically (substring containment).
type RetrievalService struct {
	sections       sectionStore
	embedder       queryEmbedder
	stats          statStore
	minScore       float64
	maxMatches     int
	hardMaxMatches int
}

func NewRetrievalService(sections sectionStore, emb queryEmbedder, stats statStore, minScore float64, maxMatches, hardMaxMatches int) *RetrievalService {
	if minScore <= 0 {
		minScore = 0.5
	}
	if maxMatches <= 0 {
		maxMatches = 10
	}
	if hardMaxMatches <= 0 {
		hardMaxMatches = 50
	}
	return &RetrievalService{
		sections:       sections,
		embedder:       emb,
		stats:          stats,
		minScore:       minScore,
		maxMatches:     maxMatches,
		hardMaxMatches: hardMaxMatches,
	}
}

// MatchSections embeds the query and returns sections above the similarity
// threshold, best first. Ties keep store order (path, then section sequence
// index ascending). The query is logged as a stat, best-effort.
func (s *RetrievalService) MatchSections(ctx context.Context, in MatchInput) ([]SectionMatch, error) {
	query := strings.TrimSpace(in.Query)
	if in.ProjectID == 0 || query == "" {
		return nil, ErrInvalidInput
	}
	minScore := in.MinScore
	if minScore <= 0 {
		minScore = s.minScore
	}
	limit := in.MaxMatches
	if limit <= 0 {
		limit = s.maxMatches
	}
	if limit > s.hardMaxMatches {
		limit = s.hardMaxMatches
	}

	rows, err := s.sections.ListByProjectID(in.ProjectID)
	if err != nil {
		return nil, err
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var matches []SectionMatch
	for i := range rows {
		score := cosineSimilarity(queryVec, rows[i].EmbeddingVector())
		if float64(score) < minScore {
			continue
		}
		matches = append(matches, SectionMatch{
			Path:     rows[i].Path,
			Heading:  rows[i].Heading,
			Content:  rows[i].Content,
			SeqIndex: rows[i].SeqIndex,
			Score:    score,
		})
	}
	// Rows arrive ordered by (path, seq_index); the stable sort preserves
	// that order for equal scores.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	s.recordStat(in.ProjectID, query, matches)
	return matches, nil
}

// SearchSections is the lexical surface: a case-insensitive substring match
// of the query against section content, in (path, sequence) order. No
// unicode folding is applied.
func (s *RetrievalService) SearchSections(ctx context.Context, projectID uint, query string, limit int) ([]SectionMatch, error) {
	query = strings.TrimSpace(query)
	if projectID == 0 || query == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = s.maxMatches
	}
	if limit > s.hardMaxMatches {
		limit = s.hardMaxMatches
	}

	rows, err := s.sections.ListByProjectID(projectID)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var matches []SectionMatch
	for i := range rows {
		if !strings.Contains(strings.ToLower(rows[i].Content), needle) {
			continue
		}
		matches = append(matches, SectionMatch{
			Path:     rows[i].Path,
			Heading:  rows[i].Heading,
			Content:  rows[i].Content,
			SeqIndex: rows[i].SeqIndex,
		})
		if len(matches) == limit {
			break
		}
	}
	return matches, nil
}

func (s *RetrievalService) recordStat(projectID uint, query string, matches []SectionMatch) {
	if s.stats == nil {
		return
	}
	stat := &model.QueryStat{
		ProjectID:  projectID,
		Question:   query,
		NoResponse: len(matches) == 0,
	}
	seen := map[string]bool{}
	var paths []string
	for _, m := range matches {
		if !seen[m.Path] {
			seen[m.Path] = true
			paths = append(paths, m.Path)
		}
	}
	stat.SetReferencePaths(paths)
	if err := s.stats.Create(stat); err != nil {
		log.Printf("record query stat failed: %v", err)
	}
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(normA))*math.Sqrt(float64(normB)))
}
