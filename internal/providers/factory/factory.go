// Package factory reads Factory (Droid) token allowances with an
// app.factory.ai browser session, or with a WorkOS refresh token recovered
// from Chromium local storage.
package factory

import (
	"context"
	"strings"

	"github.com/janekbaraniewski/quotaprobe/internal/cookies"
	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/providerbase"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
	"github.com/janekbaraniewski/quotaprobe/internal/session"
	"github.com/janekbaraniewski/quotaprobe/internal/strategy"
)

const (
	providerID        = "factory"
	defaultWebBase    = "https://app.factory.ai"
	defaultWorkOSBase = "https://api.workos.com"
	usagePath         = "/api/organization/subscription/usage"
)

var sessionExtractor = session.Extractor{
	CookieName: "wos-session",
	Domains:    []string{"factory.ai"},
}

type Provider struct {
	providerbase.Base
	rt         *shared.Runtime
	webBase    string
	workosBase string
}

type Option func(*Provider)

func WithWebBase(u string) Option {
	return func(p *Provider) { p.webBase = strings.TrimRight(u, "/") }
}

func WithWorkOSBase(u string) Option {
	return func(p *Provider) { p.workosBase = strings.TrimRight(u, "/") }
}

func New(rt *shared.Runtime, opts ...Option) *Provider {
	p := &Provider{
		Base: providerbase.New(core.ProviderSpec{
			ID: providerID,
			Info: core.ProviderInfo{
				Name:         "Factory",
				Capabilities: []string{"web_session", "local_storage_token"},
				DocURL:       "https://app.factory.ai/settings/billing",
			},
			Auth:    core.ProviderAuthSpec{Type: core.ProviderAuthTypeCookie},
			Sources: []core.Source{core.SourceWeb, core.SourceLocalStorage},
			Settings: []core.SettingsContribution{
				{Key: "workos_client_id", Label: "WorkOS client id", Description: "Client id used to exchange a refresh token found in browser local storage."},
			},
		}),
		rt:         rt,
		webBase:    defaultWebBase,
		workosBase: defaultWorkOSBase,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) clientID() string {
	return strings.TrimSpace(p.rt.Settings.Provider(providerID).WorkOSClientID)
}

func (p *Provider) plan(ctx context.Context) (strategy.Plan, session.Info, bool) {
	info, err := p.rt.ExtractSession(ctx, sessionExtractor)
	plan := strategy.PlanFactory(strategy.Inputs{
		Debug:            p.rt.Settings.Debug,
		Requested:        p.rt.Settings.Provider(providerID).SourceOverride(),
		SessionAvailable: err == nil,
		ClientConfigured: p.clientID() != "",
	})
	return plan, info, err == nil
}

func (p *Provider) SourceLabel(ctx context.Context, _ core.AccountConfig) string {
	plan, info, _ := p.plan(ctx)
	return shared.PlanLabel(plan.Source, info.Source)
}

func (p *Provider) Fetch(ctx context.Context, acct core.AccountConfig) (core.UsageSnapshot, error) {
	plan, info, found := p.plan(ctx)
	log := p.rt.Logger(providerID)
	log.Debug().Str("account", acct.ID).Stringer("plan", plan).Msg("fetching")

	return strategy.Execute(ctx, plan, map[core.Source]strategy.Attempt{
		core.SourceWeb: func(ctx context.Context) (core.UsageSnapshot, error) {
			if !found {
				return core.UsageSnapshot{}, core.Errorf(core.KindNoCredentials, "no app.factory.ai browser session")
			}
			return p.fetchWeb(ctx, acct, info)
		},
		core.SourceLocalStorage: func(ctx context.Context) (core.UsageSnapshot, error) {
			return p.fetchLocalStorage(ctx, acct)
		},
	})
}

func (p *Provider) usage(ctx context.Context, r shared.Request) (usageEnvelope, error) {
	r.URL = p.webBase + usagePath
	r.Header = map[string]string{
		"User-Agent": shared.BrowserUserAgent,
		"Referer":    p.webBase + "/settings/billing",
	}
	var env usageEnvelope
	err := p.rt.DoJSON(ctx, r, &env)
	return env, err
}

func (p *Provider) fetchWeb(ctx context.Context, acct core.AccountConfig, info session.Info) (core.UsageSnapshot, error) {
	cookie := info.Header
	if cookie == "" {
		cookie = sessionExtractor.CookieName + "=" + info.Key
	}
	env, err := p.usage(ctx, shared.Request{Cookie: cookie})
	if err != nil {
		return core.UsageSnapshot{}, err
	}
	return toSnapshot(acct.ID, env, "", shared.SnapshotSource(core.SourceWeb, info.Source), p.rt.Now())
}

// fetchLocalStorage tries recovered refresh tokens newest first. A token
// WorkOS rejects moves on to the next profile.
func (p *Provider) fetchLocalStorage(ctx context.Context, acct core.AccountConfig) (core.UsageSnapshot, error) {
	clientID := p.clientID()
	if clientID == "" {
		e := core.Errorf(core.KindNoCredentials, "no WorkOS client id configured")
		e.Hint = "set providers.factory.workos_client_id"
		return core.UsageSnapshot{}, e
	}
	matches := cookies.ScanLocalStorage(ctx, p.rt.LocalStorageDirs(), refreshTokenQuery)
	if len(matches) == 0 {
		return core.UsageSnapshot{}, core.Errorf(core.KindNoCredentials, "no WorkOS refresh token in browser local storage")
	}

	log := p.rt.Logger(providerID)
	var lastErr error
	for _, m := range matches {
		tok, err := p.exchange(ctx, clientID, m.Token)
		if err != nil {
			log.Debug().Err(err).Str("store", m.Source).Msg("refresh token rejected")
			lastErr = err
			if core.KindOf(err) == core.KindAuth {
				continue
			}
			return core.UsageSnapshot{}, err
		}
		env, err := p.usage(ctx, shared.Request{Bearer: tok.AccessToken})
		if err != nil {
			return core.UsageSnapshot{}, err
		}
		return toSnapshot(acct.ID, env, tok.User.Email, shared.SnapshotSource(core.SourceLocalStorage, m.Source), p.rt.Now())
	}
	return core.UsageSnapshot{}, lastErr
}

// SessionExtractor describes the browser session cookie this provider reads.
func (p *Provider) SessionExtractor() session.Extractor {
	return sessionExtractor
}
