package connector

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markprompt/internal/config"
	"markprompt/internal/model"
)

func buildArchive(t *testing.T, root string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(root + "/" + name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newArchiveServer(t *testing.T, branches map[string][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for branch, archive := range branches {
			if strings.HasSuffix(r.URL.Path, "/zip/refs/heads/"+branch) {
				_, _ = w.Write(archive)
				return
			}
		}
		http.NotFound(w, r)
	}))
}

func TestGitHubConnectorFetch(t *testing.T) {
	archive := buildArchive(t, "docs-main", map[string]string{
		"README.md":      "# Readme",
		"docs/intro.md":  "intro",
		"docs/guide.mdx": "guide",
		"main.go":        "package main",
	})
	server := newArchiveServer(t, map[string][]byte{"main": archive})
	defer server.Close()

	conn := NewGitHubConnector(model.GitHubSourceConfig{
		Owner:           "acme",
		Repo:            "docs",
		IncludePatterns: []string{"**/*.md", "**/*.mdx"},
	}, config.GitHubConfig{})
	conn.archiveBaseURL = server.URL

	result, err := conn.Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Capped)

	paths := map[string]string{}
	for _, rec := range result.Records {
		paths[rec.Path] = rec.ContentType
	}
	assert.Len(t, paths, 3)
	assert.Equal(t, "text/markdown", paths["README.md"])
	assert.Equal(t, "text/markdown", paths["docs/guide.mdx"])
	assert.NotContains(t, paths, "main.go")
}

func TestGitHubConnectorExcludeWins(t *testing.T) {
	archive := buildArchive(t, "docs-main", map[string]string{
		"docs/keep.md":           "keep",
		"docs/internal/skip.md":  "skip",
		"docs/internal/skip2.md": "skip",
	})
	server := newArchiveServer(t, map[string][]byte{"main": archive})
	defer server.Close()

	conn := NewGitHubConnector(model.GitHubSourceConfig{
		Owner:           "acme",
		Repo:            "docs",
		IncludePatterns: []string{"**/*.md"},
		ExcludePatterns: []string{"docs/internal/**"},
	}, config.GitHubConfig{})
	conn.archiveBaseURL = server.URL

	result, err := conn.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "docs/keep.md", result.Records[0].Path)
}

func TestGitHubConnectorMasterFallback(t *testing.T) {
	archive := buildArchive(t, "docs-master", map[string]string{
		"README.md": "old default branch",
	})
	server := newArchiveServer(t, map[string][]byte{"master": archive})
	defer server.Close()

	conn := NewGitHubConnector(model.GitHubSourceConfig{Owner: "acme", Repo: "docs"}, config.GitHubConfig{})
	conn.archiveBaseURL = server.URL

	result, err := conn.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "README.md", result.Records[0].Path)
}

func TestGitHubConnectorServerErrorDoesNotFallBack(t *testing.T) {
	archive := buildArchive(t, "docs-master", map[string]string{
		"README.md": "stale",
	})
	var masterRequests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/zip/refs/heads/master") {
			masterRequests++
			_, _ = w.Write(archive)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	conn := NewGitHubConnector(model.GitHubSourceConfig{Owner: "acme", Repo: "docs"}, config.GitHubConfig{})
	conn.archiveBaseURL = server.URL

	_, err := conn.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "main")
	assert.Equal(t, 0, masterRequests, "a 500 on main must not trigger the master fallback")
}

func TestGitHubConnectorExplicitBranchDoesNotFallBack(t *testing.T) {
	server := newArchiveServer(t, map[string][]byte{})
	defer server.Close()

	conn := NewGitHubConnector(model.GitHubSourceConfig{Owner: "acme", Repo: "docs", Branch: "release"}, config.GitHubConfig{})
	conn.archiveBaseURL = server.URL

	_, err := conn.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release")
}

func TestGitHubConnectorPayloadCap(t *testing.T) {
	files := map[string]string{}
	for _, name := range []string{"a.md", "b.md", "c.md", "d.md"} {
		files[name] = strings.Repeat("lorem ipsum dolor sit amet ", 200)
	}
	archive := buildArchive(t, "docs-main", files)
	server := newArchiveServer(t, map[string][]byte{"main": archive})
	defer server.Close()

	full := NewGitHubConnector(model.GitHubSourceConfig{Owner: "acme", Repo: "docs"}, config.GitHubConfig{})
	full.archiveBaseURL = server.URL
	uncapped, err := full.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, uncapped.Records, 4)

	// Cap exactly at the first two records: the third must be excluded
	// whole, not truncated.
	var maxBytes int64
	for _, rec := range uncapped.Records[:2] {
		size, err := recordPayloadSize(rec)
		require.NoError(t, err)
		maxBytes += size
	}

	capped := NewGitHubConnector(model.GitHubSourceConfig{Owner: "acme", Repo: "docs"}, config.GitHubConfig{
		MaxPayloadBytes: maxBytes,
	})
	capped.archiveBaseURL = server.URL
	result, err := capped.Fetch(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Capped)
	require.Len(t, result.Records, 2)
	for i, rec := range result.Records {
		assert.Equal(t, uncapped.Records[i].Path, rec.Path)
		assert.Equal(t, uncapped.Records[i].Content, rec.Content)
	}
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*.md", "readme.md", true},
		{"*.md", "docs/readme.md", false},
		{"docs/*.md", "docs/readme.md", true},
		{"docs/**", "docs/a/b/c.md", true},
		{"docs/**", "other/c.md", false},
		{"**/*.md", "a/b/c.md", true},
		{"**/*.md", "c.txt", false},
		{"**/node_modules", "a/b/node_modules", true},
		{"", "anything", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchPattern(tc.pattern, tc.path), "pattern=%q path=%q", tc.pattern, tc.path)
	}
}
