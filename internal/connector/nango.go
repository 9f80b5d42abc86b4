package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"markprompt/internal/config"
	"markprompt/internal/model"
)

// NangoClient talks to a Nango-compatible integration sync service: it pages
// through a hosted sync's materialized records and controls the sync
// lifecycle (trigger, status, connection delete).
type NangoClient struct {
	baseURL    string
	secretKey  string
	pageSize   int
	httpClient *http.Client
}

// NangoRecord is one materialized record of a hosted sync.
type NangoRecord struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
	UpdatedAt   string `json:"updatedAt"`
}

// NangoSyncStatus is the lifecycle state reported for a hosted sync.
type NangoSyncStatus struct {
	Status string `json:"status"`
}

func NewNangoClient(cfg config.NangoConfig) *NangoClient {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &NangoClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		pageSize:   pageSize,
		httpClient: newHTTPClient(60),
	}
}

// GetRecords fetches one page of records sorted by id ascending.
func (c *NangoClient) GetRecords(ctx context.Context, integrationID, connectionID, recordModel string, offset, limit int) ([]NangoRecord, error) {
	params := url.Values{}
	params.Set("model", recordModel)
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort_by", "id")
	params.Set("order", "asc")

	var parsed struct {
		Records []NangoRecord `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, "/records?"+params.Encode(), integrationID, connectionID, nil, &parsed); err != nil {
		return nil, err
	}
	return parsed.Records, nil
}

// TriggerSync asks the service to start the hosted sync.
func (c *NangoClient) TriggerSync(ctx context.Context, integrationID, connectionID, syncID string) error {
	body := map[string]interface{}{"syncs": []string{syncID}}
	return c.do(ctx, http.MethodPost, "/sync/trigger", integrationID, connectionID, body, nil)
}

// SyncStatus reports the hosted sync's current state.
func (c *NangoClient) SyncStatus(ctx context.Context, integrationID, connectionID, syncID string) (*NangoSyncStatus, error) {
	params := url.Values{}
	params.Set("syncs", syncID)
	var parsed NangoSyncStatus
	if err := c.do(ctx, http.MethodGet, "/sync/status?"+params.Encode(), integrationID, connectionID, nil, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// DeleteConnection tears down the upstream connection. Used on job cancel;
// callers treat failures as best-effort.
func (c *NangoClient) DeleteConnection(ctx context.Context, integrationID, connectionID string) error {
	path := "/connection/" + url.PathEscape(connectionID) + "?provider_config_key=" + url.QueryEscape(integrationID)
	return c.do(ctx, http.MethodDelete, path, integrationID, connectionID, nil, nil)
}

func (c *NangoClient) do(ctx context.Context, method, path, integrationID, connectionID string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal nango request failed: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build nango request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Provider-Config-Key", integrationID)
	req.Header.Set("Connection-Id", connectionID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("nango request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read nango response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("nango %s %s status %d: %s", method, path, resp.StatusCode, truncateStatus(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse nango json failed: %w", err)
	}
	return nil
}

// NangoConnector pages through a hosted sync's records and maps them into
// content records.
type NangoConnector struct {
	cfg    model.NangoSourceConfig
	client *NangoClient
}

func NewNangoConnector(cfg model.NangoSourceConfig, client *NangoClient) *NangoConnector {
	return &NangoConnector{cfg: cfg, client: client}
}

func (c *NangoConnector) Fetch(ctx context.Context) (*FetchResult, error) {
	if c.client == nil {
		return nil, fmt.Errorf("nango client is not configured")
	}
	result := &FetchResult{}
	offset := 0
	for {
		page, err := c.client.GetRecords(ctx, c.cfg.IntegrationID, c.cfg.ConnectionID, c.cfg.RecordModel, offset, c.client.pageSize)
		if err != nil {
			return nil, err
		}
		for _, rec := range page {
			path := rec.Path
			if path == "" {
				path = rec.ID
			}
			result.Records = append(result.Records, ContentRecord{
				Path:        path,
				Title:       rec.Title,
				Content:     rec.Content,
				ContentType: rec.ContentType,
				Meta:        map[string]string{"nango_record_id": rec.ID},
			})
		}
		if len(page) < c.client.pageSize {
			return result, nil
		}
		offset += len(page)
	}
}
