package codex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/janekbaraniewski/quotaprobe/internal/config"
	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared/sharedtest"
)

const usageBody = `{
  "email": "dev@example.com",
  "plan_type": "plus",
  "rate_limit": {
    "allowed": true,
    "limit_reached": false,
    "primary_window": {"used_percent": 12.5, "limit_window_seconds": 18000, "reset_at": 1772463600},
    "secondary_window": {"used_percent": "63", "limit_window_seconds": 604800, "reset_at": 1772900000}
  },
  "credits": {"has_credits": true, "unlimited": false, "balance": "17.25"}
}`

const statusScript = `printf '>_ OpenAI Codex (v0.98.0)\n> '
while IFS= read -r line; do
  case "$line" in
    */status*)
      printf 'Account: dev@example.com (Plus)\n'
      printf '5h limit:     [\342\226\210\342\226\210\342\226\221\342\226\221] 42%% left (resets in 3h 10m)\n'
      printf 'Weekly limit: [\342\226\210\342\226\221\342\226\221\342\226\221] 80%% left (resets 09:00 on 6 Mar)\n'
      printf 'Credits: 1,204.5\n'
      ;;
  esac
done
`

func writeAuth(t *testing.T, dir, token string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	body := `{"tokens":{"access_token":"` + token + `","account_id":"acct-9"}}`
	if err := os.WriteFile(filepath.Join(dir, "auth.json"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestFetchOAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/backend-api/wham/usage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("ChatGPT-Account-Id"); got != "acct-9" {
			t.Errorf("ChatGPT-Account-Id = %q", got)
		}
		_, _ = w.Write([]byte(usageBody))
	}))
	defer srv.Close()

	rt := sharedtest.NewRuntime(t, sharedtest.Settings(), shared.WithHTTPClient(srv.Client()))
	t.Setenv("CODEX_HOME", "")
	writeAuth(t, filepath.Join(rt.Home, ".codex"), "tok-1")

	p := New(rt)
	acct := p.DefaultAccount()
	acct.BaseURL = srv.URL + "/backend-api/"

	if got := p.SourceLabel(context.Background(), acct); got != "OAuth API" {
		t.Fatalf("SourceLabel = %q", got)
	}
	snap, err := p.Fetch(context.Background(), acct)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if snap.Source != "oauth" {
		t.Errorf("Source = %q", snap.Source)
	}
	if snap.Primary == nil || snap.Primary.UsedPercent != 12.5 || *snap.Primary.WindowMinutes != 300 {
		t.Errorf("primary = %+v", snap.Primary)
	}
	if snap.Secondary == nil || snap.Secondary.UsedPercent != 63 || *snap.Secondary.WindowMinutes != 10080 {
		t.Errorf("secondary = %+v", snap.Secondary)
	}
	if snap.Primary.ResetsAt == nil || !snap.Primary.ResetsAt.Equal(time.Unix(1772463600, 0)) {
		t.Errorf("primary reset = %v", snap.Primary.ResetsAt)
	}
	if snap.Credits == nil || *snap.Credits != 17.25 {
		t.Errorf("credits = %v", snap.Credits)
	}
	if snap.Identity == nil || snap.Identity.Email != "dev@example.com" || snap.Identity.LoginMethod != "ChatGPT Plus" {
		t.Errorf("identity = %+v", snap.Identity)
	}
}

func TestUsageURLForBase(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://chatgpt.com", "https://chatgpt.com/backend-api/wham/usage"},
		{"https://chatgpt.com/backend-api/", "https://chatgpt.com/backend-api/wham/usage"},
		{"http://localhost:8080", "http://localhost:8080/api/codex/usage"},
	}
	for _, tt := range tests {
		if got := usageURLForBase(normalizeChatGPTBaseURL(tt.base)); got != tt.want {
			t.Errorf("usage URL for %q = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestResolveBaseURLPrecedence(t *testing.T) {
	rt := sharedtest.NewRuntime(t, sharedtest.Settings())
	t.Setenv("CODEX_HOME", "")
	p := New(rt)
	acct := p.DefaultAccount()
	dir := filepath.Join(rt.Home, ".codex")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}

	t.Setenv(baseURLEnv, "")
	if got := p.resolveBaseURL(acct); got != defaultChatGPTBaseURL {
		t.Fatalf("default = %q", got)
	}

	toml := "model = \"o4\"\nchatgpt_base_url = \"https://proxy.example.com/backend-api/\" # team proxy\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := p.resolveBaseURL(acct); got != "https://proxy.example.com/backend-api" {
		t.Fatalf("config.toml = %q", got)
	}

	t.Setenv(baseURLEnv, "https://chatgpt.com")
	if got := p.resolveBaseURL(acct); got != "https://chatgpt.com/backend-api" {
		t.Fatalf("env = %q", got)
	}
}

func TestFetchOAuthUnauthorizedFallsBackToCLI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	rt := sharedtest.NewRuntime(t, sharedtest.Settings(), shared.WithHTTPClient(srv.Client()))
	t.Setenv("CODEX_HOME", "")
	writeAuth(t, filepath.Join(rt.Home, ".codex"), "stale")

	p := New(rt)
	acct := p.DefaultAccount()
	acct.BaseURL = srv.URL
	acct.Binary = sharedtest.WriteScript(t, "codex", statusScript)

	snap, err := p.Fetch(context.Background(), acct)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if snap.Source != "cli" {
		t.Fatalf("Source = %q, want cli", snap.Source)
	}
	if snap.Primary.UsedPercent != 58 {
		t.Errorf("primary used = %v, want 58", snap.Primary.UsedPercent)
	}
	if want := sharedtest.Now.Add(3*time.Hour + 10*time.Minute); snap.Primary.ResetsAt == nil || !snap.Primary.ResetsAt.Equal(want) {
		t.Errorf("primary reset = %v, want %v", snap.Primary.ResetsAt, want)
	}
	if snap.Secondary.UsedPercent != 20 || snap.Secondary.ResetDescription != "09:00 on 6 Mar" {
		t.Errorf("secondary = %+v", snap.Secondary)
	}
	if snap.Credits == nil || *snap.Credits != 1204.5 {
		t.Errorf("credits = %v", snap.Credits)
	}
	if snap.Identity == nil || snap.Identity.LoginMethod != "ChatGPT Plus" {
		t.Errorf("identity = %+v", snap.Identity)
	}
}

func TestFetchServerErrorDoesNotFallBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rt := sharedtest.NewRuntime(t, sharedtest.Settings(), shared.WithHTTPClient(srv.Client()))
	t.Setenv("CODEX_HOME", "")
	writeAuth(t, filepath.Join(rt.Home, ".codex"), "tok")

	p := New(rt)
	acct := p.DefaultAccount()
	acct.BaseURL = srv.URL

	_, err := p.Fetch(context.Background(), acct)
	if !errors.Is(err, core.ErrServer) {
		t.Fatalf("err = %v, want server error", err)
	}
	var fe *core.FetchError
	if !errors.As(err, &fe) || fe.Source != core.SourceOAuth || fe.StatusCode != http.StatusBadGateway {
		t.Fatalf("err = %#v", err)
	}
}

func TestNoTokenUsesCLI(t *testing.T) {
	rt := sharedtest.NewRuntime(t, sharedtest.Settings())
	t.Setenv("CODEX_HOME", "")
	p := New(rt)
	if got := p.SourceLabel(context.Background(), p.DefaultAccount()); got != "CLI" {
		t.Fatalf("SourceLabel = %q, want CLI", got)
	}
}

func TestCLIUpdateRequired(t *testing.T) {
	rt := sharedtest.NewRuntime(t, sharedtest.Settings())
	t.Setenv("CODEX_HOME", "")
	p := New(rt)
	acct := p.DefaultAccount()
	acct.Binary = sharedtest.WriteScript(t, "codex", `printf 'Update required: 0.40.0 -> 0.98.0\nPlease update to continue.\n'
sleep 5
`)

	_, err := p.Fetch(context.Background(), acct)
	if core.KindOf(err) != core.KindUpdateRequired {
		t.Fatalf("kind = %q (%v)", core.KindOf(err), err)
	}
	var fe *core.FetchError
	if !errors.As(err, &fe) || fe.Hint != "npm install -g @openai/codex@latest" {
		t.Fatalf("hint = %#v", err)
	}
}

func TestCLIParseFailureRetriesOnceWidened(t *testing.T) {
	settings := sharedtest.Settings()
	settings.PTYTimeout = 1500 * time.Millisecond
	rt := sharedtest.NewRuntime(t, settings)
	t.Setenv("CODEX_HOME", "")
	p := New(rt)

	counter := filepath.Join(t.TempDir(), "runs")
	acct := p.DefaultAccount()
	acct.Binary = sharedtest.WriteScript(t, "codex", `echo run >> "`+counter+`"
printf 'unexpected banner\n> '
read -r line
printf 'nothing useful\n'
sleep 10
`)

	_, err := p.Fetch(context.Background(), acct)
	if !errors.Is(err, core.ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
	data, readErr := os.ReadFile(counter)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if runs := len(data) / len("run\n"); runs != 2 {
		t.Fatalf("runs = %d, want exactly 2", runs)
	}
}

func TestParseCLIClampsAndRequiresWindows(t *testing.T) {
	s, err := parseCLI("5-hour: 140% used\n", sharedtest.Now)
	if err != nil {
		t.Fatal(err)
	}
	if s.FiveHour.UsedPercent != 100 {
		t.Errorf("used = %v", s.FiveHour.UsedPercent)
	}
	if _, err := parseCLI("Model: o4\nDirectory: ~/src\n", sharedtest.Now); core.KindOf(err) != core.KindMalformed {
		t.Errorf("err = %v, want malformed", err)
	}
}

func TestToSnapshotWithoutRateLimit(t *testing.T) {
	_, err := toSnapshot("codex", usagePayload{PlanType: "pro"}, sharedtest.Now)
	if core.KindOf(err) != core.KindMalformed {
		t.Fatalf("err = %v", err)
	}
}

func TestDebugSourceOverride(t *testing.T) {
	settings := sharedtest.Settings()
	settings.Debug = true
	settings.Providers[providerID] = config.ProviderSettings{Source: "cli"}
	rt := sharedtest.NewRuntime(t, settings)
	t.Setenv("CODEX_HOME", "")
	writeAuth(t, filepath.Join(rt.Home, ".codex"), "tok")

	p := New(rt)
	if got := p.SourceLabel(context.Background(), p.DefaultAccount()); got != "CLI" {
		t.Fatalf("SourceLabel = %q, want CLI", got)
	}
}
