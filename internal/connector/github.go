package connector

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"markprompt/internal/config"
	"markprompt/internal/model"
)

const defaultArchiveBaseURL = "https://codeload.github.com"

// GitHubConnector downloads a repository archive for one branch and yields
// its files as content records. The combined payload is capped: files are
// included whole, greedily, until the serialized+compressed size would
// exceed MaxPayloadBytes; the overflowing file is excluded, not truncated.
type GitHubConnector struct {
	cfg             model.GitHubSourceConfig
	token           string
	maxPayloadBytes int64
	archiveBaseURL  string
	httpClient      *http.Client
}

func NewGitHubConnector(cfg model.GitHubSourceConfig, global config.GitHubConfig) *GitHubConnector {
	maxBytes := global.MaxPayloadBytes
	if maxBytes <= 0 {
		maxBytes = 4_000_000
	}
	return &GitHubConnector{
		cfg:             cfg,
		token:           global.Token,
		maxPayloadBytes: maxBytes,
		archiveBaseURL:  defaultArchiveBaseURL,
		httpClient:      newHTTPClient(60),
	}
}

func (c *GitHubConnector) Fetch(ctx context.Context) (*FetchResult, error) {
	branch := c.cfg.Branch
	if branch == "" {
		branch = "main"
	}

	archive, status, err := c.downloadArchive(ctx, branch)
	if err != nil && branch == "main" && status == http.StatusNotFound {
		// Repositories created before the default-branch rename only have
		// master. Anything other than a missing branch (timeout, 5xx) is a
		// real failure and must not be masked by a fallback.
		var fallbackErr error
		archive, _, fallbackErr = c.downloadArchive(ctx, "master")
		if fallbackErr != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("read github archive failed: %w", err)
	}

	result := &FetchResult{}
	var total int64
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		// Archive entries are prefixed with "<repo>-<branch>/".
		relPath := stripArchiveRoot(entry.Name)
		if relPath == "" {
			continue
		}
		if !c.includes(relPath) {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("open archive entry %s failed: %w", relPath, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read archive entry %s failed: %w", relPath, err)
		}

		record := ContentRecord{
			Path:        relPath,
			Title:       path.Base(relPath),
			Content:     string(content),
			ContentType: contentTypeForPath(relPath),
		}
		size, err := recordPayloadSize(record)
		if err != nil {
			return nil, err
		}
		if total+size > c.maxPayloadBytes {
			result.Capped = true
			break
		}
		total += size
		result.Records = append(result.Records, record)
	}
	return result, nil
}

// downloadArchive returns the archive bytes and the upstream HTTP status
// (zero when the request never got a response).
func (c *GitHubConnector) downloadArchive(ctx context.Context, branch string) ([]byte, int, error) {
	url := fmt.Sprintf("%s/%s/%s/zip/refs/heads/%s",
		strings.TrimRight(c.archiveBaseURL, "/"), c.cfg.Owner, c.cfg.Repo, branch)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build github archive request failed: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("github archive request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("github archive for %s/%s@%s: %s",
			c.cfg.Owner, c.cfg.Repo, branch, truncateStatus(resp.Status))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read github archive failed: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *GitHubConnector) includes(relPath string) bool {
	for _, pattern := range c.cfg.ExcludePatterns {
		if matchPattern(pattern, relPath) {
			return false
		}
	}
	if len(c.cfg.IncludePatterns) == 0 {
		return true
	}
	for _, pattern := range c.cfg.IncludePatterns {
		if matchPattern(pattern, relPath) {
			return true
		}
	}
	return false
}

// matchPattern matches a path against a glob. Besides plain path.Match
// globs, "dir/**" matches everything under dir and "**/x" matches x at any
// depth (including by base name).
func matchPattern(pattern, relPath string) bool {
	if pattern == "" {
		return false
	}
	if ok, _ := path.Match(pattern, relPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/**") {
		return strings.HasPrefix(relPath, strings.TrimSuffix(pattern, "**"))
	}
	if strings.HasPrefix(pattern, "**/") {
		rest := strings.TrimPrefix(pattern, "**/")
		if ok, _ := path.Match(rest, path.Base(relPath)); ok {
			return true
		}
		if ok, _ := path.Match(rest, relPath); ok {
			return true
		}
	}
	return false
}

func stripArchiveRoot(name string) string {
	idx := strings.Index(name, "/")
	if idx < 0 {
		return ""
	}
	return name[idx+1:]
}

// recordPayloadSize is the serialized+compressed size of one record, the
// unit the payload cap counts.
func recordPayloadSize(record ContentRecord) (int64, error) {
	serialized, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("serialize record %s failed: %w", record.Path, err)
	}
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return 0, fmt.Errorf("init compressor failed: %w", err)
	}
	if _, err := w.Write(serialized); err != nil {
		return 0, fmt.Errorf("compress record %s failed: %w", record.Path, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("compress record %s failed: %w", record.Path, err)
	}
	return int64(buf.Len()), nil
}

func contentTypeForPath(relPath string) string {
	switch strings.ToLower(path.Ext(relPath)) {
	case ".md", ".mdx", ".mdoc", ".markdown":
		return "text/markdown"
	case ".html", ".htm":
		return "text/html"
	case ".rst":
		return "text/x-rst"
	default:
		return "text/plain"
	}
}
