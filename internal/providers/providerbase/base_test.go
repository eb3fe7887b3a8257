package providerbase

import (
	"testing"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

func TestNew_AppliesDefaults(t *testing.T) {
	base := New(core.ProviderSpec{
		ID: "sample",
		Auth: core.ProviderAuthSpec{
			Type:      core.ProviderAuthTypeAPIKey,
			APIKeyEnv: "SAMPLE_API_KEY",
		},
		Sources: []core.Source{core.SourceAPI},
	})

	if got := base.Describe().Name; got != "sample" {
		t.Fatalf("name = %q, want sample", got)
	}
	acct := base.DefaultAccount()
	if acct.ID != "sample" || acct.Provider != "sample" || acct.APIKeyEnv != "SAMPLE_API_KEY" {
		t.Fatalf("default account = %+v", acct)
	}
	if len(base.SettingsContributions()) != 0 {
		t.Fatal("single-source providers should not contribute a source setting")
	}
	if base.Supports(core.SourceAuto) {
		t.Fatal("single-source providers should not list auto")
	}
}

func TestNew_MultiSourceContributesSourceSetting(t *testing.T) {
	base := New(core.ProviderSpec{
		ID:      "multi",
		Info:    core.ProviderInfo{Name: "Multi"},
		Sources: []core.Source{core.SourceWeb, core.SourceCLI},
		Settings: []core.SettingsContribution{
			{Key: "web_extras", Label: "Web extras", Default: "false"},
		},
		Auth: core.ProviderAuthSpec{DefaultAccountID: "multi-default"},
	})

	settings := base.SettingsContributions()
	if len(settings) != 2 {
		t.Fatalf("settings = %d, want 2", len(settings))
	}
	if settings[0].Key != "source" || settings[0].Default != "auto" {
		t.Fatalf("first setting = %+v", settings[0])
	}
	if got := settings[0].Choices; len(got) != 3 || got[0] != "auto" {
		t.Fatalf("choices = %v", got)
	}
	if !base.Supports(core.SourceCLI) || base.Supports(core.SourceAPI) {
		t.Fatal("supports mismatch")
	}
	if got := base.DefaultAccount().ID; got != "multi-default" {
		t.Fatalf("default account id = %q", got)
	}

	settings[0].Key = "mutated"
	if base.SettingsContributions()[0].Key != "source" {
		t.Fatal("SettingsContributions should return a copy")
	}
}
