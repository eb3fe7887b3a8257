// Package codex reads Codex rate limits from the ChatGPT usage API with the
// token in auth.json, or from the codex CLI's /status panel.
package codex

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/janekbaraniewski/quotaprobe/internal/config"
	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/providerbase"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
	"github.com/janekbaraniewski/quotaprobe/internal/strategy"
)

const (
	providerID            = "codex"
	defaultCodexConfigDir = ".codex"
	defaultChatGPTBaseURL = "https://chatgpt.com/backend-api"
	defaultBinary         = "codex"
	baseURLEnv            = "CODEX_CHATGPT_BASE_URL"
)

type Provider struct {
	providerbase.Base
	rt *shared.Runtime
}

func New(rt *shared.Runtime) *Provider {
	return &Provider{
		Base: providerbase.New(core.ProviderSpec{
			ID: providerID,
			Info: core.ProviderInfo{
				Name:         "Codex",
				Capabilities: []string{"oauth_usage", "cli_pty", "credits"},
				DocURL:       "https://developers.openai.com/codex/",
			},
			Auth:    core.ProviderAuthSpec{Type: core.ProviderAuthTypeOAuth},
			Sources: []core.Source{core.SourceOAuth, core.SourceCLI},
			Settings: []core.SettingsContribution{
				{Key: "binary", Label: "codex binary", Description: "Path or name of the codex CLI.", Default: defaultBinary},
			},
		}),
		rt: rt,
	}
}

func (p *Provider) configDir(acct core.AccountConfig) string {
	if dir := acct.Extra("codex_home"); dir != "" {
		return dir
	}
	if dir := strings.TrimSpace(os.Getenv("CODEX_HOME")); dir != "" {
		return dir
	}
	return filepath.Join(p.rt.Home, defaultCodexConfigDir)
}

// readAuth returns the stored access token and ChatGPT account id. A missing
// or unreadable auth.json yields an empty token.
func (p *Provider) readAuth(acct core.AccountConfig) (token, accountID string) {
	if acct.Token != "" {
		return acct.Token, acct.Extra("account_id")
	}
	path := filepath.Join(p.configDir(acct), "auth.json")
	if f := acct.Extra("auth_file"); f != "" {
		path = f
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ""
	}
	var auth authFile
	if err := json.Unmarshal(data, &auth); err != nil {
		log := p.rt.Logger(providerID)
		log.Debug().Err(err).Str("path", path).Msg("unreadable auth.json")
		return "", ""
	}
	return strings.TrimSpace(auth.Tokens.AccessToken), lo.CoalesceOrEmpty(auth.Tokens.AccountID, auth.AccountID, acct.Extra("account_id"))
}

func (p *Provider) plan(acct core.AccountConfig) strategy.Plan {
	token, _ := p.readAuth(acct)
	return strategy.PlanCodex(strategy.Inputs{
		Debug:          p.rt.Settings.Debug,
		Requested:      p.rt.Settings.Provider(providerID).SourceOverride(),
		TokenAvailable: token != "",
	})
}

func (p *Provider) SourceLabel(_ context.Context, acct core.AccountConfig) string {
	return shared.SourceLabel(p.plan(acct).Source)
}

func (p *Provider) Fetch(ctx context.Context, acct core.AccountConfig) (core.UsageSnapshot, error) {
	plan := p.plan(acct)
	log := p.rt.Logger(providerID)
	log.Debug().Str("account", acct.ID).Stringer("plan", plan).Msg("fetching")

	return strategy.Execute(ctx, plan, map[core.Source]strategy.Attempt{
		core.SourceOAuth: func(ctx context.Context) (core.UsageSnapshot, error) {
			return p.fetchOAuth(ctx, acct)
		},
		core.SourceCLI: func(ctx context.Context) (core.UsageSnapshot, error) {
			return p.fetchCLI(ctx, acct)
		},
	})
}

func (p *Provider) fetchOAuth(ctx context.Context, acct core.AccountConfig) (core.UsageSnapshot, error) {
	token, accountID := p.readAuth(acct)
	if token == "" {
		return core.UsageSnapshot{}, core.Errorf(core.KindNoCredentials, "no access token in %s", filepath.Join(p.configDir(acct), "auth.json"))
	}

	header := map[string]string{"User-Agent": "codex-cli"}
	if accountID != "" {
		header["ChatGPT-Account-Id"] = accountID
	}
	var payload usagePayload
	err := p.rt.DoJSON(ctx, shared.Request{
		URL:    usageURLForBase(p.resolveBaseURL(acct)),
		Bearer: token,
		Header: header,
	}, &payload)
	if err != nil {
		return core.UsageSnapshot{}, err
	}
	return toSnapshot(acct.ID, payload, p.rt.Now())
}

func (p *Provider) fetchCLI(ctx context.Context, acct core.AccountConfig) (core.UsageSnapshot, error) {
	binary := lo.CoalesceOrEmpty(p.rt.Settings.Provider(providerID).Binary, defaultBinary)
	status, err := shared.CaptureCLI(ctx, p.rt, acct, cliRecipe(binary), func(screen string) (cliStatus, error) {
		return parseCLI(screen, p.rt.Now())
	})
	if err != nil {
		return core.UsageSnapshot{}, err
	}
	return status.snapshot(acct.ID, p.rt.Now()), nil
}

// resolveBaseURL: account base_url, then CODEX_CHATGPT_BASE_URL, then
// chatgpt_base_url in config.toml, then the public backend.
func (p *Provider) resolveBaseURL(acct core.AccountConfig) string {
	if acct.BaseURL != "" {
		return normalizeChatGPTBaseURL(acct.BaseURL)
	}
	tomlPath := filepath.Join(p.configDir(acct), "config.toml")
	return normalizeChatGPTBaseURL(config.ResolveBaseURL(baseURLEnv, tomlPath, "chatgpt_base_url", defaultChatGPTBaseURL))
}

func normalizeChatGPTBaseURL(baseURL string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return defaultChatGPTBaseURL
	}
	if (strings.HasPrefix(baseURL, "https://chatgpt.com") || strings.HasPrefix(baseURL, "https://chat.openai.com")) &&
		!strings.Contains(baseURL, "/backend-api") {
		baseURL += "/backend-api"
	}
	return baseURL
}

func usageURLForBase(baseURL string) string {
	if strings.Contains(baseURL, "/backend-api") {
		return baseURL + "/wham/usage"
	}
	return baseURL + "/api/codex/usage"
}
