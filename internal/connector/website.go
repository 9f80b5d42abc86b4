package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"markprompt/internal/config"
	"markprompt/internal/model"
)

// WebsiteConnector fetches a single URL's raw text, either directly or
// through an external rendering service for JavaScript-heavy pages.
type WebsiteConnector struct {
	cfg              model.WebsiteSourceConfig
	renderServiceURL string
	httpClient       *http.Client
}

func NewWebsiteConnector(cfg model.WebsiteSourceConfig, global config.WebsiteConfig) *WebsiteConnector {
	return &WebsiteConnector{
		cfg:              cfg,
		renderServiceURL: global.RenderServiceURL,
		httpClient:       newHTTPClient(global.TimeoutSeconds),
	}
}

func (c *WebsiteConnector) Fetch(ctx context.Context) (*FetchResult, error) {
	target := c.cfg.URL
	if target == "" {
		return nil, fmt.Errorf("website source has no url")
	}

	fetchURL := target
	if c.cfg.UseRenderService && c.renderServiceURL != "" {
		fetchURL = c.renderServiceURL + "?url=" + url.QueryEscape(target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build website request failed: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("website request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read website response failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		// Surface the upstream status text so the sync log can show why the
		// page was not fetched.
		detail := resp.Status
		if len(body) > 0 {
			detail = detail + ": " + string(body)
		}
		return nil, fmt.Errorf("fetch %s failed: %s", target, truncateStatus(detail))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/html"
	}
	return &FetchResult{
		Records: []ContentRecord{{
			Path:        target,
			Title:       target,
			Content:     string(body),
			ContentType: contentType,
		}},
	}, nil
}
