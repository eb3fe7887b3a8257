package core

type ProviderAuthType string

const (
	ProviderAuthTypeUnknown ProviderAuthType = ""
	ProviderAuthTypeAPIKey  ProviderAuthType = "api_key"
	ProviderAuthTypeOAuth   ProviderAuthType = "oauth"
	ProviderAuthTypeCLI     ProviderAuthType = "cli"
	ProviderAuthTypeCookie  ProviderAuthType = "cookie"
)

// ProviderAuthSpec defines how a provider authenticates and how users configure it.
type ProviderAuthSpec struct {
	Type             ProviderAuthType
	APIKeyEnv        string
	DefaultAccountID string
}

// ProviderSpec is the canonical provider definition used for registration.
type ProviderSpec struct {
	ID       string
	Info     ProviderInfo
	Auth     ProviderAuthSpec
	Sources  []Source
	Settings []SettingsContribution
}
