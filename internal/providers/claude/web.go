package claude

import (
	"context"
	"net/url"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
	"github.com/janekbaraniewski/quotaprobe/internal/session"
)

var sessionExtractor = session.Extractor{
	CookieName: "sessionKey",
	Domains:    []string{"claude.ai"},
	Validate:   session.PrefixValidator("sk-ant-"),
}

// webClient talks to claude.ai with a browser session.
type webClient struct {
	rt     *shared.Runtime
	base   string
	cookie string
}

func (c webClient) get(ctx context.Context, path string, out any) error {
	return c.rt.DoJSON(ctx, shared.Request{
		URL:    c.base + path,
		Cookie: c.cookie,
		Header: map[string]string{
			"User-Agent":                shared.BrowserUserAgent,
			"Referer":                   c.base + "/settings/usage",
			"anthropic-client-platform": "web_claude_ai",
		},
	}, out)
}

func (c webClient) organization(ctx context.Context) (organization, error) {
	var orgs []organization
	if err := c.get(ctx, "/api/organizations", &orgs); err != nil {
		return organization{}, err
	}
	for _, org := range orgs {
		if org.UUID != "" {
			return org, nil
		}
	}
	return organization{}, core.Errorf(core.KindMalformed, "no organization on this claude.ai account")
}

func (c webClient) usage(ctx context.Context, orgID string) (usageResponse, error) {
	var u usageResponse
	err := c.get(ctx, "/api/organizations/"+url.PathEscape(orgID)+"/usage", &u)
	return u, err
}

func (c webClient) spendLimit(ctx context.Context, orgID string) (*spendLimit, error) {
	var s spendLimit
	if err := c.get(ctx, "/api/organizations/"+url.PathEscape(orgID)+"/overage_spend_limit", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c webClient) email(ctx context.Context) (string, error) {
	var a account
	if err := c.get(ctx, "/api/account", &a); err != nil {
		return "", err
	}
	return a.EmailAddress, nil
}

// extras are the web-only parts of a snapshot. Each lookup is best effort.
type extras struct {
	Cost     *core.ProviderCostSnapshot
	Identity core.AccountIdentity
}

func (p *Provider) webExtras(ctx context.Context, c webClient, org organization) extras {
	log := p.rt.Logger(providerID)
	out := extras{Identity: core.AccountIdentity{Organization: org.Name}}
	if limit, err := c.spendLimit(ctx, org.UUID); err != nil {
		log.Debug().Err(err).Msg("spend limit unavailable")
	} else {
		out.Cost = limit.cost(p.rt.Now())
	}
	if email, err := c.email(ctx); err != nil {
		log.Debug().Err(err).Msg("account email unavailable")
	} else {
		out.Identity.Email = email
	}
	return out
}

func (p *Provider) fetchWeb(ctx context.Context, acct core.AccountConfig, info session.Info) (core.UsageSnapshot, error) {
	c := p.web(info)
	org, err := c.organization(ctx)
	if err != nil {
		return core.UsageSnapshot{}, err
	}
	u, err := c.usage(ctx, org.UUID)
	if err != nil {
		return core.UsageSnapshot{}, err
	}
	x := p.webExtras(ctx, c, org)
	return toSnapshot(acct.ID, u, x.Cost, x.Identity, shared.SnapshotSource(core.SourceWeb, info.Source), p.rt.Now())
}

func (p *Provider) web(info session.Info) webClient {
	cookie := info.Header
	if cookie == "" {
		cookie = "sessionKey=" + info.Key
	}
	return webClient{rt: p.rt, base: p.webBase, cookie: cookie}
}
