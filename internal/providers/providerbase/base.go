package providerbase

import (
	"slices"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

// Base centralizes provider metadata.
// Provider-specific packages embed this and implement SourceLabel and Fetch.
type Base struct {
	spec core.ProviderSpec
}

func New(spec core.ProviderSpec) Base {
	normalized := spec
	if normalized.ID == "" {
		normalized.ID = "unknown"
	}
	if normalized.Info.Name == "" {
		normalized.Info.Name = normalized.ID
	}
	if normalized.Auth.DefaultAccountID == "" {
		normalized.Auth.DefaultAccountID = normalized.ID
	}
	if len(normalized.Sources) > 1 && !slices.Contains(normalized.Sources, core.SourceAuto) {
		normalized.Sources = append([]core.Source{core.SourceAuto}, normalized.Sources...)
	}
	if len(normalized.Sources) > 1 && !hasSetting(normalized.Settings, "source") {
		normalized.Settings = append([]core.SettingsContribution{sourceSetting(normalized.Sources)}, normalized.Settings...)
	}

	return Base{spec: normalized}
}

func (b Base) ID() string {
	return b.spec.ID
}

func (b Base) Describe() core.ProviderInfo {
	return b.spec.Info
}

func (b Base) SettingsContributions() []core.SettingsContribution {
	return slices.Clone(b.spec.Settings)
}

func (b Base) Supports(src core.Source) bool {
	return slices.Contains(b.spec.Sources, src)
}

// DefaultAccount is the account used when settings list none for this provider.
func (b Base) DefaultAccount() core.AccountConfig {
	return core.AccountConfig{
		ID:        b.spec.Auth.DefaultAccountID,
		Provider:  b.spec.ID,
		APIKeyEnv: b.spec.Auth.APIKeyEnv,
	}
}

func hasSetting(settings []core.SettingsContribution, key string) bool {
	return slices.ContainsFunc(settings, func(s core.SettingsContribution) bool { return s.Key == key })
}

func sourceSetting(sources []core.Source) core.SettingsContribution {
	choices := make([]string, 0, len(sources))
	for _, s := range sources {
		choices = append(choices, string(s))
	}
	return core.SettingsContribution{
		Key:         "source",
		Label:       "Usage source",
		Description: "Where usage is read from. Explicit choices apply in debug mode.",
		Default:     string(core.SourceAuto),
		Choices:     choices,
	}
}
