// Package claude reads Claude subscription usage from a claude.ai browser
// session, the claude CLI's /usage panel or the OAuth usage API.
package claude

import (
	"context"

	"github.com/samber/lo"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/providerbase"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
	"github.com/janekbaraniewski/quotaprobe/internal/session"
	"github.com/janekbaraniewski/quotaprobe/internal/strategy"
)

const (
	providerID     = "claude"
	defaultAPIBase = "https://api.anthropic.com"
	defaultWebBase = "https://claude.ai"
	defaultBinary  = "claude"
)

type Provider struct {
	providerbase.Base
	rt      *shared.Runtime
	apiBase string
	webBase string
}

type Option func(*Provider)

func WithAPIBase(u string) Option {
	return func(p *Provider) { p.apiBase = u }
}

func WithWebBase(u string) Option {
	return func(p *Provider) { p.webBase = u }
}

func New(rt *shared.Runtime, opts ...Option) *Provider {
	p := &Provider{
		Base: providerbase.New(core.ProviderSpec{
			ID: providerID,
			Info: core.ProviderInfo{
				Name:         "Claude",
				Capabilities: []string{"web_session", "cli_pty", "oauth_usage", "spend_limit"},
				DocURL:       "https://claude.ai/settings/usage",
			},
			Auth:    core.ProviderAuthSpec{Type: core.ProviderAuthTypeCookie},
			Sources: []core.Source{core.SourceWeb, core.SourceCLI, core.SourceOAuth},
			Settings: []core.SettingsContribution{
				{Key: "web_extras", Label: "Web extras", Description: "Add spend limit and account email to CLI fetches when a browser session exists.", Default: "false"},
				{Key: "binary", Label: "claude binary", Description: "Path or name of the claude CLI.", Default: defaultBinary},
			},
		}),
		rt:      rt,
		apiBase: defaultAPIBase,
		webBase: defaultWebBase,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// plan checks for a browser session once; the session found is reused by
// the web attempt.
func (p *Provider) plan(ctx context.Context) (strategy.Plan, session.Info, bool) {
	settings := p.rt.Settings.Provider(providerID)
	info, err := p.rt.ExtractSession(ctx, sessionExtractor)
	plan := strategy.PlanClaude(strategy.Inputs{
		Debug:            p.rt.Settings.Debug,
		Requested:        settings.SourceOverride(),
		SessionAvailable: err == nil,
		WebExtrasOptIn:   settings.WebExtras,
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
				return core.UsageSnapshot{}, core.Errorf(core.KindNoCredentials, "no claude.ai browser session")
			}
			return p.fetchWeb(ctx, acct, info)
		},
		core.SourceCLI: func(ctx context.Context) (core.UsageSnapshot, error) {
			return p.fetchCLI(ctx, acct, plan.Flags, info)
		},
		core.SourceOAuth: func(ctx context.Context) (core.UsageSnapshot, error) {
			return p.fetchOAuth(ctx, acct)
		},
	})
}

func (p *Provider) fetchCLI(ctx context.Context, acct core.AccountConfig, flags strategy.Flags, info session.Info) (core.UsageSnapshot, error) {
	binary := lo.CoalesceOrEmpty(p.rt.Settings.Provider(providerID).Binary, defaultBinary)
	usage, err := shared.CaptureCLI(ctx, p.rt, acct, cliRecipe(binary), func(screen string) (cliUsage, error) {
		return parseCLI(screen, p.rt.Now())
	})
	if err != nil {
		return core.UsageSnapshot{}, err
	}

	var x extras
	if flags.WebExtras {
		c := p.web(info)
		if org, err := c.organization(ctx); err != nil {
			log := p.rt.Logger(providerID)
			log.Debug().Err(err).Msg("web extras unavailable")
		} else {
			x = p.webExtras(ctx, c, org)
		}
	}
	return core.NewUsageSnapshot(providerID, acct.ID,
		core.WithPrimary(usage.Session),
		core.WithSecondary(usage.Week),
		core.WithTertiary(usage.Model),
		core.WithCost(x.Cost),
		core.WithIdentity(x.Identity),
		core.WithSource(string(core.SourceCLI)),
		core.WithUpdatedAt(p.rt.Now()),
	), nil
}

// SessionExtractor describes the browser session cookie this provider reads.
func (p *Provider) SessionExtractor() session.Extractor {
	return sessionExtractor
}
