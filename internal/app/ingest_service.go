package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"markprompt/internal/ai"
	"markprompt/internal/connector"
	"markprompt/internal/model"
)

const (
	defaultChunkSize     = 512
	defaultChunkOverlap  = 64
	defaultBatchSize     = 10
	defaultMaxBatchTokens = 8000
)

type embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type ingestFileStore interface {
	ReplaceWithSections(file *model.File, sections []model.FileSection) error
	DeleteByPathsWithChecksums(projectID, sourceID uint, paths []string, checksums map[string]string) error
}

type checksumReader interface {
	Get(projectID, sourceID uint) (map[string]string, error)
}

// IngestionError is one per-file failure collected during a run. A
// quota-exceeded error additionally means the run stopped early.
type IngestionError struct {
	Path          string `json:"path"`
	QuotaExceeded bool   `json:"quota_exceeded"`
	Err           error  `json:"-"`
}

func (e IngestionError) Error() string {
	if e.QuotaExceeded {
		return fmt.Sprintf("%s: embedding quota exceeded", e.Path)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// IngestOptions tune one ingestion run.
type IngestOptions struct {
	// DeleteMissing removes files whose paths are absent from the incoming
	// record set. Pull syncs set it; push-style uploads are additive.
	DeleteMissing bool
	// Canceled is polled between files; when it reports true the run stops
	// writing. Already-committed files stay committed. Nil means never.
	Canceled func(ctx context.Context) bool
}

// IngestReport summarizes what one run changed.
type IngestReport struct {
	Embedded int  `json:"embedded"`
	Skipped  int  `json:"skipped"`
	Deleted  int  `json:"deleted"`
	Canceled bool `json:"canceled"`
}

// IngestService is the embedding/ingestion pipeline: it diffs incoming
// records against the stored checksum map, re-embeds only what changed,
// replaces file sections wholesale, deletes files removed upstream and
// writes back the new checksum map.
type IngestService struct {
	files          ingestFileStore
	checksums      checksumReader
	embedder       embedder
	batchSize      int
	maxBatchTokens int
	cancelPollEvery int
}

func NewIngestService(files ingestFileStore, checksums checksumReader, emb embedder, batchSize, maxBatchTokens, cancelPollEvery int) *IngestService {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxBatchTokens <= 0 {
		maxBatchTokens = defaultMaxBatchTokens
	}
	if cancelPollEvery <= 0 {
		cancelPollEvery = 5
	}
	return &IngestService{
		files:           files,
		checksums:       checksums,
		embedder:        emb,
		batchSize:       batchSize,
		maxBatchTokens:  maxBatchTokens,
		cancelPollEvery: cancelPollEvery,
	}
}

// Ingest runs the pipeline for one source. Per-file failures are collected
// and returned, not fatal; the returned error is reserved for store-level
// failures that invalidate the whole run. Progress committed before a
// failure or cancellation is preserved.
func (s *IngestService) Ingest(ctx context.Context, src *model.Source, records []connector.ContentRecord, opts IngestOptions) (*IngestReport, []IngestionError, error) {
	if src == nil {
		return nil, nil, ErrInvalidInput
	}

	oldChecksums, err := s.checksums.Get(src.ProjectID, src.ID)
	if err != nil {
		return nil, nil, err
	}

	// Checksum comparison is exact: any byte change re-embeds the file.
	newChecksums := make(map[string]string, len(oldChecksums))
	for path, sum := range oldChecksums {
		newChecksums[path] = sum
	}

	report := &IngestReport{}
	var ingestErrs []IngestionError

	seen := make(map[string]bool, len(records))
	var changed []connector.ContentRecord
	for _, rec := range records {
		if rec.Path == "" || seen[rec.Path] {
			continue
		}
		seen[rec.Path] = true
		if oldChecksums[rec.Path] == contentChecksum(rec.Content) && oldChecksums[rec.Path] != "" {
			report.Skipped++
			continue
		}
		changed = append(changed, rec)
	}

	var removed []string
	if opts.DeleteMissing {
		for path := range oldChecksums {
			if !seen[path] {
				removed = append(removed, path)
			}
		}
	}

	quotaHit := false
	for i, rec := range changed {
		if opts.Canceled != nil && i%s.cancelPollEvery == 0 && opts.Canceled(ctx) {
			report.Canceled = true
			break
		}

		sections, err := s.embedSections(ctx, rec)
		if err != nil {
			if errors.Is(err, ai.ErrQuotaExceeded) {
				ingestErrs = append(ingestErrs, IngestionError{Path: rec.Path, QuotaExceeded: true, Err: err})
				quotaHit = true
				break
			}
			ingestErrs = append(ingestErrs, IngestionError{Path: rec.Path, Err: err})
			continue
		}

		checksum := contentChecksum(rec.Content)
		file := &model.File{
			SourceID:   src.ID,
			Path:       rec.Path,
			Title:      rec.Title,
			Content:    rec.Content,
			Checksum:   checksum,
			TokenCount: approxTokens(rec.Content),
		}
		if len(rec.Meta) > 0 {
			if meta, err := json.Marshal(rec.Meta); err == nil {
				file.InternalMeta = string(meta)
			}
		}
		if err := s.files.ReplaceWithSections(file, sections); err != nil {
			ingestErrs = append(ingestErrs, IngestionError{Path: rec.Path, Err: err})
			continue
		}
		newChecksums[rec.Path] = checksum
		report.Embedded++
	}

	// A canceled run must not keep deleting; the files are still persisted,
	// so their checksum entries stay too.
	if report.Canceled || quotaHit {
		removed = nil
	}
	for _, path := range removed {
		delete(newChecksums, path)
	}
	report.Deleted = len(removed)

	// The final write only reflects paths whose file writes committed, and
	// it deletes the removed files in the same transaction it writes the
	// map, so map keys always equal persisted paths.
	if report.Embedded > 0 || len(removed) > 0 {
		if err := s.files.DeleteByPathsWithChecksums(src.ProjectID, src.ID, removed, newChecksums); err != nil {
			return report, ingestErrs, err
		}
	}

	return report, ingestErrs, nil
}

// embedSections chunks a record and embeds the chunks, batching calls under
// the per-call size and token cutoffs. Empty content yields zero sections.
func (s *IngestService) embedSections(ctx context.Context, rec connector.ContentRecord) ([]model.FileSection, error) {
	drafts := splitSections(rec.Content)
	if len(drafts) == 0 {
		return nil, nil
	}

	sections := make([]model.FileSection, len(drafts))
	texts := make([]string, len(drafts))
	for i, d := range drafts {
		sections[i] = model.FileSection{
			Content:    d.text,
			SeqIndex:   i,
			Heading:    d.heading,
			TokenCount: approxTokens(d.text),
		}
		texts[i] = d.text
	}

	var vectors [][]float32
	for start := 0; start < len(texts); {
		end := start + 1
		batchTokens := approxTokens(texts[start])
		for end < len(texts) && end-start < s.batchSize {
			next := approxTokens(texts[end])
			if batchTokens+next > s.maxBatchTokens {
				break
			}
			batchTokens += next
			end++
		}
		batch, err := s.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
		start = end
	}
	if len(vectors) != len(sections) {
		return nil, fmt.Errorf("embedding count mismatch for %s: %d sections, %d vectors", rec.Path, len(sections), len(vectors))
	}
	for i := range sections {
		sections[i].SetEmbedding(vectors[i])
	}
	return sections, nil
}

type sectionDraft struct {
	heading string
	text    string
}

// splitSections cuts content at markdown headings, then splits oversized
// bodies into overlapping chunks. Whitespace-only content yields nothing.
func splitSections(content string) []sectionDraft {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var drafts []sectionDraft
	heading := ""
	var body strings.Builder

	flush := func() {
		text := strings.TrimSpace(body.String())
		body.Reset()
		if text == "" {
			return
		}
		for _, chunk := range chunkText(text, defaultChunkSize, defaultChunkOverlap) {
			drafts = append(drafts, sectionDraft{heading: heading, text: chunk})
		}
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			flush()
			heading = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()
	return drafts
}

// chunkText splits text into overlapping chunks by rune count.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap >= size {
		overlap = size / 2
	}
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		i += size - overlap
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func contentChecksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// approxTokens estimates token counts at four characters per token, close
// enough for batch sizing and credit accounting.
func approxTokens(text string) int {
	return (len(text) + 3) / 4
}
