// Package zai reads GLM coding-plan quotas from the Z.AI monitor API.
package zai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/janekbaraniewski/quotaprobe/internal/config"
	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/providerbase"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
	"github.com/janekbaraniewski/quotaprobe/internal/strategy"
)

const (
	providerID            = "zai"
	apiKeyEnv             = "ZAI_API_KEY"
	baseURLEnv            = "ZAI_API_BASE_URL"
	baseURLOverrideKey    = "zai_base_url"
	defaultMonitorBaseURL = "https://api.z.ai"
	quotaLimitPath        = "/api/monitor/usage/quota/limit"
)

type Provider struct {
	providerbase.Base
	rt        *shared.Runtime
	overrides string
}

type Option func(*Provider)

// WithOverridesFile reads zai_base_url from path instead of the default
// overrides.conf.
func WithOverridesFile(path string) Option {
	return func(p *Provider) { p.overrides = path }
}

func New(rt *shared.Runtime, opts ...Option) *Provider {
	p := &Provider{
		Base: providerbase.New(core.ProviderSpec{
			ID: providerID,
			Info: core.ProviderInfo{
				Name:         "Z.AI",
				Capabilities: []string{"api_usage"},
				DocURL:       "https://docs.z.ai/devpack/overview",
			},
			Auth: core.ProviderAuthSpec{
				Type:      core.ProviderAuthTypeAPIKey,
				APIKeyEnv: apiKeyEnv,
			},
			Sources: []core.Source{core.SourceAPI},
		}),
		rt:        rt,
		overrides: config.OverridesPath(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) SourceLabel(context.Context, core.AccountConfig) string {
	return shared.SourceLabel(core.SourceAPI)
}

func (p *Provider) Fetch(ctx context.Context, acct core.AccountConfig) (core.UsageSnapshot, error) {
	return strategy.Execute(ctx, strategy.Fixed(core.SourceAPI), map[core.Source]strategy.Attempt{
		core.SourceAPI: func(ctx context.Context) (core.UsageSnapshot, error) {
			return p.fetchAPI(ctx, acct)
		},
	})
}

// apiKey: account token or env, then credentials.json, then shell profiles.
func (p *Provider) apiKey(acct core.AccountConfig) (string, error) {
	if acct.APIKeyEnv == "" {
		acct.APIKeyEnv = apiKeyEnv
	}
	if key := strings.TrimSpace(acct.ResolveAPIKey()); key != "" {
		return key, nil
	}
	if key := p.rt.Credentials.Key(acct.ID, providerID); key != "" {
		return key, nil
	}
	if key, file, ok := config.LookupProfileValue(p.rt.Home, acct.APIKeyEnv); ok {
		log := p.rt.Logger(providerID)
		log.Debug().Str("file", file).Msg("api key read from shell profile")
		return key, nil
	}
	return "", core.Errorf(core.KindNoCredentials, "no API key (set %s)", acct.APIKeyEnv)
}

func (p *Provider) baseURL(acct core.AccountConfig) string {
	if acct.BaseURL != "" {
		return strings.TrimRight(acct.BaseURL, "/")
	}
	return config.ResolveBaseURL(baseURLEnv, p.overrides, baseURLOverrideKey, defaultMonitorBaseURL)
}

func (p *Provider) fetchAPI(ctx context.Context, acct core.AccountConfig) (core.UsageSnapshot, error) {
	key, err := p.apiKey(acct)
	if err != nil {
		return core.UsageSnapshot{}, err
	}

	var env monitorEnvelope
	err = p.rt.DoJSON(ctx, shared.Request{
		URL:    p.baseURL(acct) + quotaLimitPath,
		Bearer: key,
		Header: map[string]string{"Accept-Language": "en-US,en"},
	}, &env)
	if err != nil {
		return core.UsageSnapshot{}, classifyServerError(err)
	}
	data, err := decodeEnvelope(env)
	if err != nil {
		return core.UsageSnapshot{}, err
	}
	return toSnapshot(acct.ID, data, p.rt.Now())
}

// classifyServerError turns a non-2xx response whose body says the account
// has no coding package into the no-package error.
func classifyServerError(err error) error {
	var fe *core.FetchError
	if !errors.As(err, &fe) || fe.Kind != core.KindServer || fe.Body == "" {
		return err
	}
	var env monitorEnvelope
	if json.Unmarshal([]byte(fe.Body), &env) == nil && isNoPackage(env.code(), env.Msg) {
		return noPackageError()
	}
	if isNoPackage("", fe.Body) {
		return noPackageError()
	}
	return err
}
