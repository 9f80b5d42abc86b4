package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"markprompt/internal/config"
	"markprompt/internal/model"
)

// ErrNotSyncable marks source types whose content is pushed through the API
// (file-upload, api-upload, motif) rather than pulled by a connector.
var ErrNotSyncable = errors.New("source type is not syncable")

// ContentRecord is one unit of content produced by a connector.
type ContentRecord struct {
	Path        string            `json:"path"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	ContentType string            `json:"content_type"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// FetchResult is the full output of one connector fetch. Capped is set when
// the connector stopped early because the payload size cap was reached.
type FetchResult struct {
	Records []ContentRecord `json:"records"`
	Capped  bool            `json:"capped"`
}

// Connector pulls content records from an external system. Fetch produces a
// finite, complete result; it is not restartable mid-stream, so callers
// consume the whole result or fetch again.
type Connector interface {
	Fetch(ctx context.Context) (*FetchResult, error)
}

// Factory builds the connector for a source from its typed config.
type Factory struct {
	github  config.GitHubConfig
	website config.WebsiteConfig
	nango   *NangoClient
}

func NewFactory(github config.GitHubConfig, website config.WebsiteConfig, nango *NangoClient) *Factory {
	return &Factory{github: github, website: website, nango: nango}
}

// ForSource decodes the source config and returns the matching connector.
// The switch over source types is exhaustive: push-style types return
// ErrNotSyncable and unknown types fail decoding.
func (f *Factory) ForSource(src *model.Source) (Connector, error) {
	decoded, err := model.DecodeSourceConfig(src)
	if err != nil {
		return nil, err
	}
	switch cfg := decoded.(type) {
	case model.GitHubSourceConfig:
		return NewGitHubConnector(cfg, f.github), nil
	case model.WebsiteSourceConfig:
		return NewWebsiteConnector(cfg, f.website), nil
	case model.NangoSourceConfig:
		return NewNangoConnector(cfg, f.nango), nil
	case model.UploadSourceConfig:
		return nil, fmt.Errorf("source %d (%s): %w", src.ID, src.Type, ErrNotSyncable)
	default:
		return nil, fmt.Errorf("no connector for source type %q", src.Type)
	}
}

func newHTTPClient(timeoutSeconds int) *http.Client {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}
}

// truncateStatus trims an upstream status/error text for storage in sync
// logs. 500 characters is enough to diagnose without bloating the log row.
func truncateStatus(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[:max]
}
