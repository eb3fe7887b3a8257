package providers

import (
	"testing"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared/sharedtest"
)

func TestNewRegistry_ClosedSet(t *testing.T) {
	rt := sharedtest.NewRuntime(t, sharedtest.Settings())
	all := NewRegistry(rt)

	want := []string{"claude", "codex", "zai", "cursor", "factory"}
	if len(all) != len(want) {
		t.Fatalf("providers = %d, want %d", len(all), len(want))
	}
	for i, id := range want {
		if all[i].ID() != id {
			t.Errorf("providers[%d] = %q, want %q", i, all[i].ID(), id)
		}
		if all[i].Describe().Name == "" {
			t.Errorf("%s: empty display name", id)
		}
	}
}

func TestProviderByID(t *testing.T) {
	all := NewRegistry(sharedtest.NewRuntime(t, sharedtest.Settings()))
	if p, ok := ProviderByID(all, "zai"); !ok || p.ID() != "zai" {
		t.Fatalf("ProviderByID(zai) = %v, %v", p, ok)
	}
	if _, ok := ProviderByID(all, "openai"); ok {
		t.Fatal("ProviderByID(openai) found a provider")
	}
}

func TestAccounts_DefaultsForUnconfiguredProviders(t *testing.T) {
	all := NewRegistry(sharedtest.NewRuntime(t, sharedtest.Settings()))
	configured := []core.AccountConfig{
		{ID: "work-claude", Provider: "claude"},
		{ID: "old-cursor", Provider: "cursor"},
	}
	enabled := func(id string) bool { return id != "cursor" }

	got := Accounts(all, configured, enabled)

	var ids []string
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	want := []string{"work-claude", "codex", "zai", "factory"}
	if len(ids) != len(want) {
		t.Fatalf("accounts = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("accounts = %v, want %v", ids, want)
		}
	}
	for _, a := range got {
		if a.ID == "zai" && a.APIKeyEnv != "ZAI_API_KEY" {
			t.Errorf("zai default APIKeyEnv = %q", a.APIKeyEnv)
		}
	}
}
