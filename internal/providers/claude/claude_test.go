package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janekbaraniewski/quotaprobe/internal/config"
	"github.com/janekbaraniewski/quotaprobe/internal/cookies"
	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared/sharedtest"
)

const usageFixture = `{
  "five_hour": {"utilization": 42, "resets_at": "2026-03-02T14:00:00Z"},
  "seven_day": {"utilization": "17.5", "resets_at": "2026-03-06T09:00:00+00:00"},
  "seven_day_oauth_apps": null,
  "seven_day_opus": {"utilization": 3, "resets_at": null},
  "seven_day_sonnet": {"utilization": 9, "resets_at": null},
  "extra_usage": {"is_enabled": true, "monthly_limit": 5000, "used_credits": 1234, "utilization": 24.68}
}`

const usageScript = `printf 'Claude Code v2.1.0\n> '
while IFS= read -r line; do
  case "$line" in
    */usage*)
      printf '\033[1mCurrent session\033[0m\n  \342\226\210\342\226\210     15%% used\n  Resets in 2h 5m\n'
      printf 'Current week (all models)\n  40%% used\n  Resets Mar 6, 9am (UTC)\n'
      printf 'Current week (Opus)\n  3%% used\n'
      ;;
  esac
done
`

func providerSettings(source string) config.ProviderSettings {
	return config.ProviderSettings{Source: source}
}

func decodeFixture(t *testing.T, body string) usageResponse {
	t.Helper()
	var u usageResponse
	require.NoError(t, json.Unmarshal([]byte(body), &u))
	return u
}

func TestUsageResponseSlots(t *testing.T) {
	u := decodeFixture(t, usageFixture)
	assert.Equal(t, "seven_day_opus", u.TertiaryKey)

	primary, secondary, tertiary, err := u.windows(sharedtest.Now)
	require.NoError(t, err)
	assert.Equal(t, 42.0, primary.UsedPercent)
	assert.Equal(t, fiveHourMinutes, *primary.WindowMinutes)
	require.NotNil(t, primary.ResetsAt)
	assert.Equal(t, 17.5, secondary.UsedPercent)
	assert.Equal(t, weekMinutes, *secondary.WindowMinutes)
	assert.Equal(t, 3.0, tertiary.UsedPercent)
	assert.Nil(t, tertiary.ResetsAt)

	cost := u.Extra.cost(sharedtest.Now)
	require.NotNil(t, cost)
	assert.InDelta(t, 12.34, cost.Used, 1e-9)
	assert.InDelta(t, 50.0, cost.Limit, 1e-9)
	assert.Equal(t, "USD", cost.CurrencyCode)
	assert.Equal(t, "Monthly", cost.Period)
}

func TestUsageResponseDecodesDeterministically(t *testing.T) {
	a := decodeFixture(t, usageFixture)
	b := decodeFixture(t, usageFixture)
	p1, s1, t1, err := a.windows(sharedtest.Now)
	require.NoError(t, err)
	p2, s2, t2, err := b.windows(sharedtest.Now)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, s1, s2)
	assert.Equal(t, t1, t2)
}

func TestUsageResponseTertiaryFallbacks(t *testing.T) {
	alias := decodeFixture(t, `{"five_hour":{"utilization":1},"seven_day_opus":null,"seven_day_sonnet":{"utilization":8}}`)
	assert.Equal(t, "seven_day_sonnet", alias.TertiaryKey)

	heuristic := decodeFixture(t, `{"seven_day":{"utilization":1},"weekly_opus_4":{"utilization":55}}`)
	assert.Equal(t, "weekly_opus_4", heuristic.TertiaryKey)
	_, _, tertiary, err := heuristic.windows(sharedtest.Now)
	require.NoError(t, err)
	assert.Equal(t, 55.0, tertiary.UsedPercent)

	none := decodeFixture(t, `{"five_hour":{"utilization":1},"seven_day":{"utilization":2}}`)
	assert.Nil(t, none.Tertiary)
}

func TestUsageResponseClampsAndExpiresWindows(t *testing.T) {
	u := decodeFixture(t, `{
	  "five_hour": {"utilization": 100, "resets_at": "2026-03-02T11:00:00Z"},
	  "seven_day": {"utilization": 131}
	}`)
	primary, secondary, _, err := u.windows(sharedtest.Now)
	require.NoError(t, err)
	assert.Equal(t, 0.0, primary.UsedPercent, "a window past its reset reads as empty")
	assert.Equal(t, 100.0, secondary.UsedPercent)
}

func TestUsageResponseWithoutWindowsIsMalformed(t *testing.T) {
	u := decodeFixture(t, `{"extra_usage": null}`)
	_, _, _, err := u.windows(sharedtest.Now)
	assert.Equal(t, core.KindMalformed, core.KindOf(err))
}

func TestParseCLI(t *testing.T) {
	screen := "Settings: Status Config Usage\n" +
		"Current session\n████▌ 15% used\nResets in 2h 5m\n" +
		"Current week (all models)\n40% used\nResets Mar 6, 9am (UTC)\n" +
		"Current week (Opus)\n3% used\n"

	u, err := parseCLI(screen, sharedtest.Now)
	require.NoError(t, err)
	assert.Equal(t, 15.0, u.Session.UsedPercent)
	require.NotNil(t, u.Session.ResetsAt)
	assert.Equal(t, sharedtest.Now.Add(2*time.Hour+5*time.Minute), *u.Session.ResetsAt)
	assert.Equal(t, 40.0, u.Week.UsedPercent)
	assert.Equal(t, "Mar 6, 9am (UTC)", u.Week.ResetDescription)
	assert.Nil(t, u.Week.ResetsAt)
	assert.Equal(t, 3.0, u.Model.UsedPercent)

	_, err = parseCLI("Welcome to Claude Code\n> ", sharedtest.Now)
	assert.Equal(t, core.KindMalformed, core.KindOf(err))
}

func TestCLIBlockers(t *testing.T) {
	err := cliBlockers.Check("Loading usage data…")
	assert.Equal(t, core.KindDataNotReady, core.KindOf(err))

	err = cliBlockers.Check("Update required: 1.0.3 -> 2.1.0. Run claude update")
	require.Equal(t, core.KindUpdateRequired, core.KindOf(err))
	assert.Contains(t, core.UserMessage(err), "claude update")
}

func writeCredentials(t *testing.T, home string, expiresAt time.Time) {
	t.Helper()
	dir := filepath.Join(home, ".claude")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	body := `{"claudeAiOauth":{"accessToken":"oat-123","expiresAt":` + jsonInt(expiresAt.UnixMilli()) + `,"subscriptionType":"max"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".credentials.json"), []byte(body), 0o600))
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestFetchOAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/oauth/usage", r.URL.Path)
		assert.Equal(t, "Bearer oat-123", r.Header.Get("Authorization"))
		assert.Equal(t, "oauth-2025-04-20", r.Header.Get("anthropic-beta"))
		_, _ = w.Write([]byte(usageFixture))
	}))
	defer srv.Close()

	settings := sharedtest.Settings()
	settings.Debug = true
	settings.Providers["claude"] = providerSettings("oauth")
	rt := sharedtest.NewRuntime(t, settings, shared.WithHTTPClient(srv.Client()))
	writeCredentials(t, rt.Home, sharedtest.Now.Add(time.Hour))

	p := New(rt, WithAPIBase(srv.URL))
	snap, err := p.Fetch(context.Background(), p.DefaultAccount())
	require.NoError(t, err)
	assert.Equal(t, "claude", snap.ProviderID)
	assert.Equal(t, "oauth", snap.Source)
	assert.Equal(t, 42.0, snap.Primary.UsedPercent)
	require.NotNil(t, snap.Identity)
	assert.Equal(t, "Claude Max", snap.Identity.LoginMethod)
	require.NotNil(t, snap.Cost)
	assert.InDelta(t, 12.34, snap.Cost.Used, 1e-9)
}

func TestFetchOAuthExpiredToken(t *testing.T) {
	settings := sharedtest.Settings()
	settings.Debug = true
	settings.Providers["claude"] = providerSettings("oauth")
	rt := sharedtest.NewRuntime(t, settings)
	writeCredentials(t, rt.Home, sharedtest.Now.Add(-time.Minute))

	p := New(rt, WithAPIBase("http://127.0.0.1:1"))
	_, err := p.Fetch(context.Background(), p.DefaultAccount())
	require.Error(t, err)
	assert.Equal(t, core.KindAuth, core.KindOf(err))
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func claudeWebServer(t *testing.T, usageStatus int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Cookie"), "sessionKey=sk-ant-sid01-abc")
		assert.Equal(t, "web_claude_ai", r.Header.Get("anthropic-client-platform"))
		switch r.URL.Path {
		case "/api/organizations":
			_, _ = w.Write([]byte(`[{"uuid":"org-1","name":"Acme"}]`))
		case "/api/organizations/org-1/usage":
			w.WriteHeader(usageStatus)
			_, _ = w.Write([]byte(usageFixture))
		case "/api/organizations/org-1/overage_spend_limit":
			_, _ = w.Write([]byte(`{"is_enabled":true,"monthly_credit_limit":10000,"used_credits":"2500","currency":"EUR"}`))
		case "/api/account":
			_, _ = w.Write([]byte(`{"email_address":"dev@example.com"}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func sessionStores() []cookies.Store {
	return []cookies.Store{
		sharedtest.Store{Name: "Safari"},
		sharedtest.Store{Name: "Chrome (Profile 1)", Records: []cookies.Record{
			{Name: "sessionKey", Value: " sk-ant-sid01-abc ", Domain: ".claude.ai"},
			{Name: "lastActiveOrg", Value: "org-1", Domain: "claude.ai"},
			{Name: "sessionKey", Value: "sk-ant-other", Domain: "example.com"},
		}},
	}
}

func TestFetchWebUsesFirstStoreWithSession(t *testing.T) {
	srv := claudeWebServer(t, http.StatusOK)
	defer srv.Close()

	rt := sharedtest.NewRuntime(t, sharedtest.Settings(),
		shared.WithHTTPClient(srv.Client()),
		shared.WithCookieStores(sessionStores()...),
	)
	p := New(rt, WithWebBase(srv.URL))

	assert.Equal(t, "browser session (Chrome (Profile 1))", p.SourceLabel(context.Background(), p.DefaultAccount()))

	snap, err := p.Fetch(context.Background(), p.DefaultAccount())
	require.NoError(t, err)
	assert.Equal(t, "web · Chrome (Profile 1)", snap.Source)
	assert.Equal(t, 17.5, snap.Secondary.UsedPercent)
	require.NotNil(t, snap.Identity)
	assert.Equal(t, "Acme", snap.Identity.Organization)
	assert.Equal(t, "dev@example.com", snap.Identity.Email)
	require.NotNil(t, snap.Cost)
	assert.Equal(t, "EUR", snap.Cost.CurrencyCode)
	assert.InDelta(t, 25.0, snap.Cost.Used, 1e-9)
	assert.InDelta(t, 100.0, snap.Cost.Limit, 1e-9)
}

func TestFetchWebAuthFailureFallsBackToCLI(t *testing.T) {
	srv := claudeWebServer(t, http.StatusUnauthorized)
	defer srv.Close()

	rt := sharedtest.NewRuntime(t, sharedtest.Settings(),
		shared.WithHTTPClient(srv.Client()),
		shared.WithCookieStores(sessionStores()...),
	)
	p := New(rt, WithWebBase(srv.URL))
	acct := p.DefaultAccount()
	acct.Binary = sharedtest.WriteScript(t, "claude", usageScript)

	snap, err := p.Fetch(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, "cli", snap.Source)
	assert.Equal(t, 15.0, snap.Primary.UsedPercent)
	assert.Equal(t, 40.0, snap.Secondary.UsedPercent)
	assert.Equal(t, 3.0, snap.Tertiary.UsedPercent)
	assert.Nil(t, snap.Cost, "web extras are off unless requested")
}

func TestFetchCLIReusesSession(t *testing.T) {
	rt := sharedtest.NewRuntime(t, sharedtest.Settings())
	p := New(rt)
	acct := p.DefaultAccount()
	acct.Binary = sharedtest.WriteScript(t, "claude", usageScript)

	assert.Equal(t, "CLI", p.SourceLabel(context.Background(), acct))
	for i := 0; i < 2; i++ {
		snap, err := p.Fetch(context.Background(), acct)
		require.NoError(t, err)
		assert.Equal(t, 15.0, snap.Primary.UsedPercent)
	}
	assert.Equal(t, 1, rt.Sessions.Len())
}

func TestFetchCLIWithWebExtras(t *testing.T) {
	srv := claudeWebServer(t, http.StatusOK)
	defer srv.Close()

	settings := sharedtest.Settings()
	settings.Debug = true
	ps := providerSettings("cli")
	ps.WebExtras = true
	settings.Providers["claude"] = ps
	rt := sharedtest.NewRuntime(t, settings,
		shared.WithHTTPClient(srv.Client()),
		shared.WithCookieStores(sessionStores()...),
	)
	p := New(rt, WithWebBase(srv.URL))
	acct := p.DefaultAccount()
	acct.Binary = sharedtest.WriteScript(t, "claude", usageScript)

	snap, err := p.Fetch(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, "cli", snap.Source)
	require.NotNil(t, snap.Cost)
	assert.Equal(t, "EUR", snap.Cost.CurrencyCode)
	require.NotNil(t, snap.Identity)
	assert.Equal(t, "dev@example.com", snap.Identity.Email)
}

func TestFetchCLIDataNotReady(t *testing.T) {
	rt := sharedtest.NewRuntime(t, sharedtest.Settings())
	p := New(rt)
	acct := p.DefaultAccount()
	acct.Binary = sharedtest.WriteScript(t, "claude", `printf '> '
while IFS= read -r line; do printf 'Loading usage data...\n'; done
`)

	_, err := p.Fetch(context.Background(), acct)
	require.Error(t, err)
	assert.Equal(t, core.KindDataNotReady, core.KindOf(err))
	assert.ErrorIs(t, err, core.ErrDataNotReady)
}

func TestFetchCLIMissingBinary(t *testing.T) {
	rt := sharedtest.NewRuntime(t, sharedtest.Settings())
	p := New(rt)
	acct := p.DefaultAccount()
	acct.Binary = filepath.Join(t.TempDir(), "claude")

	_, err := p.Fetch(context.Background(), acct)
	require.Error(t, err)
	assert.Equal(t, core.KindToolMissing, core.KindOf(err))
}
