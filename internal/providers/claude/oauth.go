package claude

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
)

type credentialsFile struct {
	ClaudeAiOauth *oauthToken `json:"claudeAiOauth"`
}

type oauthToken struct {
	AccessToken      string `json:"accessToken"`
	ExpiresAt        int64  `json:"expiresAt"` // epoch ms
	SubscriptionType string `json:"subscriptionType"`
}

func (p *Provider) credentialsPath(acct core.AccountConfig) string {
	if path := acct.Extra("credentials_file"); path != "" {
		return path
	}
	return filepath.Join(p.rt.Home, ".claude", ".credentials.json")
}

func readOAuthToken(path string) (oauthToken, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return oauthToken{}, core.Errorf(core.KindNoCredentials, "no Claude OAuth credentials at %s", path)
		}
		return oauthToken{}, core.Errorf(core.KindNoCredentials, "reading %s: %w", path, err)
	}
	var creds credentialsFile
	if err := json.Unmarshal(data, &creds); err != nil {
		return oauthToken{}, core.Errorf(core.KindMalformed, "parsing %s: %w", path, err)
	}
	if creds.ClaudeAiOauth == nil || strings.TrimSpace(creds.ClaudeAiOauth.AccessToken) == "" {
		return oauthToken{}, core.Errorf(core.KindNoCredentials, "%s has no access token", path)
	}
	return *creds.ClaudeAiOauth, nil
}

func (p *Provider) fetchOAuth(ctx context.Context, acct core.AccountConfig) (core.UsageSnapshot, error) {
	tok := oauthToken{AccessToken: acct.Token}
	if tok.AccessToken == "" {
		var err error
		if tok, err = readOAuthToken(p.credentialsPath(acct)); err != nil {
			return core.UsageSnapshot{}, err
		}
	}
	now := p.rt.Now()
	if tok.ExpiresAt > 0 && time.UnixMilli(tok.ExpiresAt).Before(now) {
		e := core.Errorf(core.KindAuth, "OAuth token expired")
		e.Hint = "run `claude` to sign in again"
		return core.UsageSnapshot{}, e
	}

	var u usageResponse
	err := p.rt.DoJSON(ctx, shared.Request{
		URL:    p.apiBase + "/api/oauth/usage",
		Bearer: tok.AccessToken,
		Header: map[string]string{"anthropic-beta": "oauth-2025-04-20"},
	}, &u)
	if err != nil {
		return core.UsageSnapshot{}, err
	}
	return toSnapshot(acct.ID, u, u.Extra.cost(now), core.AccountIdentity{LoginMethod: planName(tok.SubscriptionType)}, string(core.SourceOAuth), now)
}

func planName(subscription string) string {
	subscription = strings.TrimSpace(subscription)
	if subscription == "" {
		return ""
	}
	return "Claude " + strings.ToUpper(subscription[:1]) + subscription[1:]
}
