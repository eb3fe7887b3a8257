package providers

import (
	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/claude"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/codex"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/cursor"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/factory"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/zai"
)

// NewRegistry returns every supported provider, sharing rt.
func NewRegistry(rt *shared.Runtime) []core.Provider {
	return []core.Provider{
		claude.New(rt),
		codex.New(rt),
		zai.New(rt),
		cursor.New(rt),
		factory.New(rt),
	}
}

// ProviderByID looks id up in providers.
func ProviderByID(providers []core.Provider, id string) (core.Provider, bool) {
	for _, p := range providers {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

// Accounts returns the configured accounts of enabled providers, adding the
// default account of every enabled provider that has none configured.
func Accounts(providers []core.Provider, configured []core.AccountConfig, enabled func(id string) bool) []core.AccountConfig {
	var out []core.AccountConfig
	seen := map[string]bool{}
	for _, acct := range configured {
		if enabled(acct.Provider) {
			out = append(out, acct)
			seen[acct.Provider] = true
		}
	}
	for _, p := range providers {
		if seen[p.ID()] || !enabled(p.ID()) {
			continue
		}
		if d, ok := p.(interface{ DefaultAccount() core.AccountConfig }); ok {
			out = append(out, d.DefaultAccount())
		}
	}
	return out
}
