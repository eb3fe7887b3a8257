// Package cursor reads Cursor plan usage with the cursor.com browser session.
package cursor

import (
	"context"
	"regexp"
	"strings"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/providerbase"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
	"github.com/janekbaraniewski/quotaprobe/internal/session"
	"github.com/janekbaraniewski/quotaprobe/internal/strategy"
)

const (
	providerID     = "cursor"
	defaultWebBase = "https://cursor.com"
)

// The session token is "<user id>::<jwt>", URL-encoded in most stores.
var sessionExtractor = session.Extractor{
	CookieName: "WorkosCursorSessionToken",
	Domains:    []string{"cursor.com", "cursor.sh"},
	Validate:   session.ShapeValidator(regexp.MustCompile(`^[^:%]+(%3A%3A|::).+`)),
}

type Provider struct {
	providerbase.Base
	rt      *shared.Runtime
	webBase string
}

type Option func(*Provider)

func WithWebBase(u string) Option {
	return func(p *Provider) { p.webBase = strings.TrimRight(u, "/") }
}

func New(rt *shared.Runtime, opts ...Option) *Provider {
	p := &Provider{
		Base: providerbase.New(core.ProviderSpec{
			ID: providerID,
			Info: core.ProviderInfo{
				Name:         "Cursor",
				Capabilities: []string{"web_session", "billing"},
				DocURL:       "https://cursor.com/dashboard?tab=usage",
			},
			Auth:    core.ProviderAuthSpec{Type: core.ProviderAuthTypeCookie},
			Sources: []core.Source{core.SourceWeb},
		}),
		rt:      rt,
		webBase: defaultWebBase,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) SourceLabel(ctx context.Context, _ core.AccountConfig) string {
	info, _ := p.rt.ExtractSession(ctx, sessionExtractor)
	return shared.PlanLabel(core.SourceWeb, info.Source)
}

func (p *Provider) Fetch(ctx context.Context, acct core.AccountConfig) (core.UsageSnapshot, error) {
	return strategy.Execute(ctx, strategy.Fixed(core.SourceWeb), map[core.Source]strategy.Attempt{
		core.SourceWeb: func(ctx context.Context) (core.UsageSnapshot, error) {
			return p.fetchWeb(ctx, acct)
		},
	})
}

func (p *Provider) fetchWeb(ctx context.Context, acct core.AccountConfig) (core.UsageSnapshot, error) {
	info, err := p.rt.ExtractSession(ctx, sessionExtractor)
	if err != nil {
		return core.UsageSnapshot{}, err
	}
	cookie := info.Header
	if cookie == "" {
		cookie = sessionExtractor.CookieName + "=" + info.Key
	}

	var summary usageSummary
	if err := p.get(ctx, cookie, "/api/usage-summary", &summary); err != nil {
		return core.UsageSnapshot{}, err
	}
	email := p.email(ctx, acct, cookie)
	return toSnapshot(acct.ID, summary, email, shared.SnapshotSource(core.SourceWeb, info.Source), p.rt.Now())
}

func (p *Provider) get(ctx context.Context, cookie, path string, out any) error {
	return p.rt.DoJSON(ctx, shared.Request{
		URL:    p.webBase + path,
		Cookie: cookie,
		Header: map[string]string{
			"User-Agent": shared.BrowserUserAgent,
			"Referer":    p.webBase + "/dashboard",
		},
	}, out)
}

// email asks /api/auth/me and falls back to the desktop app's cached email.
func (p *Provider) email(ctx context.Context, acct core.AccountConfig, cookie string) string {
	log := p.rt.Logger(providerID)
	var me authMe
	if err := p.get(ctx, cookie, "/api/auth/me", &me); err != nil {
		log.Debug().Err(err).Msg("auth/me unavailable")
	} else if me.Email != "" {
		return me.Email
	}

	path := acct.Extra("state_db")
	if path == "" {
		path = StateDBPath(p.rt.Home)
	}
	email, err := readCachedEmail(ctx, path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("cached email unavailable")
	}
	return email
}

// SessionExtractor describes the browser session cookie this provider reads.
func (p *Provider) SessionExtractor() session.Extractor {
	return sessionExtractor
}
