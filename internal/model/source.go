package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type SourceType string

const (
	SourceTypeGitHub     SourceType = "github"
	SourceTypeWebsite    SourceType = "website"
	SourceTypeFileUpload SourceType = "file-upload"
	SourceTypeAPIUpload  SourceType = "api-upload"
	SourceTypeMotif      SourceType = "motif"
	SourceTypeNango      SourceType = "nango"
)

// Source is one configured content origin for a project. Config holds the
// connector-specific settings as JSON; decode it with DecodeSourceConfig.
type Source struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	ProjectID uint       `gorm:"not null;index" json:"project_id"`
	Type      SourceType `gorm:"size:32;not null" json:"type"`
	Config    string     `gorm:"type:text" json:"-"`
	CreatedAt time.Time  `json:"created_at"`
}

// GitHubSourceConfig configures a github source.
type GitHubSourceConfig struct {
	Owner           string   `json:"owner"`
	Repo            string   `json:"repo"`
	Branch          string   `json:"branch"`
	IncludePatterns []string `json:"include_patterns"`
	ExcludePatterns []string `json:"exclude_patterns"`
}

// WebsiteSourceConfig configures a website source.
type WebsiteSourceConfig struct {
	URL              string `json:"url"`
	UseRenderService bool   `json:"use_render_service"`
}

// NangoSourceConfig configures a Nango-mediated connector source.
type NangoSourceConfig struct {
	IntegrationID string `json:"integration_id"`
	ConnectionID  string `json:"connection_id"`
	SyncID        string `json:"sync_id"`
	RecordModel   string `json:"record_model"`
}

// UploadSourceConfig configures file-upload, api-upload and motif sources.
// These are push-style origins and carry no fetch settings.
type UploadSourceConfig struct {
	DisplayName string `json:"display_name"`
}

// DecodeSourceConfig parses the source's JSON config into its typed form.
// The switch is exhaustive over SourceType: an unknown type is an error, not
// a silently ignored shape.
func DecodeSourceConfig(src *Source) (interface{}, error) {
	switch src.Type {
	case SourceTypeGitHub:
		var cfg GitHubSourceConfig
		if err := json.Unmarshal([]byte(src.Config), &cfg); err != nil {
			return nil, fmt.Errorf("decode github source config failed: %w", err)
		}
		return cfg, nil
	case SourceTypeWebsite:
		var cfg WebsiteSourceConfig
		if err := json.Unmarshal([]byte(src.Config), &cfg); err != nil {
			return nil, fmt.Errorf("decode website source config failed: %w", err)
		}
		return cfg, nil
	case SourceTypeNango:
		var cfg NangoSourceConfig
		if err := json.Unmarshal([]byte(src.Config), &cfg); err != nil {
			return nil, fmt.Errorf("decode nango source config failed: %w", err)
		}
		return cfg, nil
	case SourceTypeFileUpload, SourceTypeAPIUpload, SourceTypeMotif:
		var cfg UploadSourceConfig
		if src.Config != "" {
			if err := json.Unmarshal([]byte(src.Config), &cfg); err != nil {
				return nil, fmt.Errorf("decode upload source config failed: %w", err)
			}
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", src.Type)
	}
}

// EncodeSourceConfig validates and serializes a typed config for storage.
func EncodeSourceConfig(cfg interface{}) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode source config failed: %w", err)
	}
	return string(b), nil
}
