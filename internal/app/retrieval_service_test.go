package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markprompt/internal/model"
	"markprompt/internal/repository"
)

type fakeSectionStore struct {
	rows []repository.SectionWithPath
}

func (f *fakeSectionStore) ListByProjectID(projectID uint) ([]repository.SectionWithPath, error) {
	return f.rows, nil
}

type fakeQueryEmbedder struct {
	vector []float32
	calls  int
}

func (f *fakeQueryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vector, nil
}

type fakeStatStore struct {
	stats []*model.QueryStat
}

func (f *fakeStatStore) Create(stat *model.QueryStat) error {
	f.stats = append(f.stats, stat)
	return nil
}

func section(path, heading, content string, seq int, vec []float32) repository.SectionWithPath {
	s := repository.SectionWithPath{Path: path}
	s.Heading = heading
	s.Content = content
	s.SeqIndex = seq
	s.SetEmbedding(vec)
	return s
}

func TestMatchSectionsFiltersAndRanks(t *testing.T) {
	store := &fakeSectionStore{rows: []repository.SectionWithPath{
		section("a.md", "", "perfect", 0, []float32{1, 0}),
		section("a.md", "", "below threshold", 1, []float32{0, 1}),
		section("b.md", "", "good", 0, []float32{0.8, 0.6}),
		section("c.md", "", "ok", 0, []float32{0.6, 0.8}),
	}}
	stats := &fakeStatStore{}
	svc := NewRetrievalService(store, &fakeQueryEmbedder{vector: []float32{1, 0}}, stats, 0.5, 10, 50)

	matches, err := svc.MatchSections(context.Background(), MatchInput{ProjectID: 1, Query: "how do I"})
	require.NoError(t, err)

	require.Len(t, matches, 3)
	assert.Equal(t, "perfect", matches[0].Content)
	assert.Equal(t, "good", matches[1].Content)
	assert.Equal(t, "ok", matches[2].Content)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
	assert.InDelta(t, 0.8, matches[1].Score, 1e-5)

	require.Len(t, stats.stats, 1)
	assert.False(t, stats.stats[0].NoResponse)
	assert.Equal(t, []string{"a.md", "b.md", "c.md"}, stats.stats[0].ReferencePaths())
}

func TestMatchSectionsTiesKeepStoreOrder(t *testing.T) {
	vec := []float32{1, 0}
	store := &fakeSectionStore{rows: []repository.SectionWithPath{
		section("a.md", "", "first", 0, vec),
		section("a.md", "", "second", 1, vec),
		section("b.md", "", "third", 0, vec),
	}}
	svc := NewRetrievalService(store, &fakeQueryEmbedder{vector: vec}, &fakeStatStore{}, 0.5, 10, 50)

	matches, err := svc.MatchSections(context.Background(), MatchInput{ProjectID: 1, Query: "q"})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "first", matches[0].Content)
	assert.Equal(t, "second", matches[1].Content)
	assert.Equal(t, "third", matches[2].Content)
}

func TestMatchSectionsClampsToHardMax(t *testing.T) {
	vec := []float32{1, 0}
	var rows []repository.SectionWithPath
	for i := 0; i < 10; i++ {
		rows = append(rows, section("a.md", "", "x", i, vec))
	}
	svc := NewRetrievalService(&fakeSectionStore{rows: rows}, &fakeQueryEmbedder{vector: vec}, &fakeStatStore{}, 0.5, 2, 3)

	defaulted, err := svc.MatchSections(context.Background(), MatchInput{ProjectID: 1, Query: "q"})
	require.NoError(t, err)
	assert.Len(t, defaulted, 2)

	oversized, err := svc.MatchSections(context.Background(), MatchInput{ProjectID: 1, Query: "q", MaxMatches: 100})
	require.NoError(t, err)
	assert.Len(t, oversized, 3, "requested limit must be clamped to the hard max")
}

func TestMatchSectionsRecordsNoResponse(t *testing.T) {
	store := &fakeSectionStore{rows: []repository.SectionWithPath{
		section("a.md", "", "irrelevant", 0, []float32{0, 1}),
	}}
	stats := &fakeStatStore{}
	svc := NewRetrievalService(store, &fakeQueryEmbedder{vector: []float32{1, 0}}, stats, 0.5, 10, 50)

	matches, err := svc.MatchSections(context.Background(), MatchInput{ProjectID: 1, Query: "nothing matches"})
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.Len(t, stats.stats, 1)
	assert.True(t, stats.stats[0].NoResponse)
	assert.Empty(t, stats.stats[0].ReferencePaths())
}

func TestMatchSectionsValidatesInput(t *testing.T) {
	svc := NewRetrievalService(&fakeSectionStore{}, &fakeQueryEmbedder{}, nil, 0.5, 10, 50)

	_, err := svc.MatchSections(context.Background(), MatchInput{ProjectID: 0, Query: "q"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.MatchSections(context.Background(), MatchInput{ProjectID: 1, Query: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSearchSectionsIsCaseInsensitive(t *testing.T) {
	store := &fakeSectionStore{rows: []repository.SectionWithPath{
		section("a.md", "Setup", "Install the CLI first", 0, nil),
		section("b.md", "", "unrelated content", 0, nil),
		section("c.md", "", "then run `cli login`", 0, nil),
	}}
	emb := &fakeQueryEmbedder{}
	svc := NewRetrievalService(store, emb, &fakeStatStore{}, 0.5, 10, 50)

	matches, err := svc.SearchSections(context.Background(), 1, "CLI", 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a.md", matches[0].Path)
	assert.Equal(t, "c.md", matches[1].Path)
	assert.Equal(t, 0, emb.calls, "lexical search must not call the embedder")
}

func TestSearchSectionsHonorsLimit(t *testing.T) {
	var rows []repository.SectionWithPath
	for i := 0; i < 5; i++ {
		rows = append(rows, section("a.md", "", "needle here", i, nil))
	}
	svc := NewRetrievalService(&fakeSectionStore{rows: rows}, &fakeQueryEmbedder{}, nil, 0.5, 10, 50)

	matches, err := svc.SearchSections(context.Background(), 1, "needle", 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-5)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-5)
	assert.Equal(t, float32(0), cosineSimilarity(nil, []float32{1}))
	assert.Equal(t, float32(0), cosineSimilarity([]float32{1}, []float32{1, 2}))
}
