package strategy

import (
	"slices"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

// Inputs are the settings and cheap checks a policy decides on.
type Inputs struct {
	Debug     bool
	Requested core.Source

	// SessionAvailable: a validated browser session can be extracted now.
	SessionAvailable bool
	// TokenAvailable: a stored OAuth/API token exists.
	TokenAvailable bool
	// WebExtrasOptIn: the user enabled web augmentation of CLI fetches.
	WebExtrasOptIn bool
	// ClientConfigured: an OAuth client id needed for token exchange is set.
	ClientConfigured bool
}

// explicit returns the requested source when debug mode allows overriding
// and the provider supports it.
func (in Inputs) explicit(supported ...core.Source) (core.Source, bool) {
	if !in.Debug || in.Requested == "" || in.Requested == core.SourceAuto {
		return "", false
	}
	return in.Requested, slices.Contains(supported, in.Requested)
}

func PlanClaude(in Inputs) Plan {
	if src, ok := in.explicit(core.SourceWeb, core.SourceCLI, core.SourceOAuth); ok {
		switch {
		case src == core.SourceWeb && !in.SessionAvailable:
			return Plan{Source: core.SourceCLI, Reason: "web requested but no browser session found"}
		case src == core.SourceCLI:
			return Plan{
				Source: core.SourceCLI,
				Flags:  Flags{WebExtras: in.WebExtrasOptIn && in.SessionAvailable},
				Reason: "requested",
			}
		}
		return Plan{Source: src, Reason: "requested"}
	}
	if in.SessionAvailable {
		return Plan{
			Source:     core.SourceWeb,
			Fallback:   core.SourceCLI,
			FallbackOn: []core.ErrorKind{core.KindAuth},
			Reason:     "browser session found",
		}
	}
	return Plan{Source: core.SourceCLI, Reason: "no browser session"}
}

func PlanCodex(in Inputs) Plan {
	if src, ok := in.explicit(core.SourceOAuth, core.SourceCLI); ok {
		return Plan{Source: src, Reason: "requested"}
	}
	if in.TokenAvailable {
		return Plan{
			Source:     core.SourceOAuth,
			Fallback:   core.SourceCLI,
			FallbackOn: []core.ErrorKind{core.KindAuth, core.KindNoCredentials},
			Reason:     "auth.json has an access token",
		}
	}
	return Plan{Source: core.SourceCLI, Reason: "no stored token"}
}

func PlanFactory(in Inputs) Plan {
	if src, ok := in.explicit(core.SourceWeb, core.SourceLocalStorage); ok {
		return Plan{Source: src, Reason: "requested"}
	}
	switch {
	case in.SessionAvailable:
		return Plan{Source: core.SourceWeb, Reason: "browser session found"}
	case in.ClientConfigured:
		return Plan{Source: core.SourceLocalStorage, Reason: "refresh token exchange configured"}
	}
	return Plan{Source: core.SourceWeb, Reason: "no session or client id"}
}

// Fixed is the plan of a provider with a single acquisition path.
func Fixed(src core.Source) Plan {
	return Plan{Source: src, Reason: "only source"}
}
