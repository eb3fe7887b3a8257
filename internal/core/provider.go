package core

import (
	"context"
	"os"
)

// Source is an acquisition path for usage data.
type Source string

const (
	SourceAuto         Source = "auto"
	SourceOAuth        Source = "oauth"
	SourceWeb          Source = "web"
	SourceCLI          Source = "cli"
	SourceAPI          Source = "api"
	SourceLocalStorage Source = "localstorage"
)

func ParseSource(s string) (Source, bool) {
	switch src := Source(s); src {
	case SourceAuto, SourceOAuth, SourceWeb, SourceCLI, SourceAPI, SourceLocalStorage:
		return src, true
	case "":
		return SourceAuto, true
	}
	return SourceAuto, false
}

type AccountConfig struct {
	ID        string            `json:"id" mapstructure:"id"`
	Provider  string            `json:"provider" mapstructure:"provider"`
	APIKeyEnv string            `json:"api_key_env,omitempty" mapstructure:"api_key_env"` // env var name holding the API key
	Binary    string            `json:"binary,omitempty" mapstructure:"binary"`           // path to CLI binary
	BaseURL   string            `json:"base_url,omitempty" mapstructure:"base_url"`       // custom API base URL
	Token     string            `json:"-" mapstructure:"-"`                               // runtime-only: access token (never persisted)
	ExtraData map[string]string `json:"-" mapstructure:"extra"`                           // runtime-only: extra detection data
}

func (c AccountConfig) ResolveAPIKey() string {
	if c.Token != "" {
		return c.Token
	}
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

func (c AccountConfig) Extra(key string) string {
	if c.ExtraData == nil {
		return ""
	}
	return c.ExtraData[key]
}

type ProviderInfo struct {
	Name         string   // e.g. "Claude", "Codex"
	Capabilities []string // "oauth_usage", "web_session", "cli_pty", "credits"
	DocURL       string
}

// SettingsContribution describes one user-facing setting a provider reads.
type SettingsContribution struct {
	Key         string
	Label       string
	Description string
	Default     string
	Choices     []string
}

type Provider interface {
	ID() string

	Describe() ProviderInfo

	SettingsContributions() []SettingsContribution

	// SourceLabel is the human-readable name of the path Fetch would take now.
	SourceLabel(ctx context.Context, acct AccountConfig) string

	Fetch(ctx context.Context, acct AccountConfig) (UsageSnapshot, error)
}
