package codex

import (
	"strings"
	"time"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
)

type authFile struct {
	AccountID string     `json:"account_id,omitempty"`
	Tokens    authTokens `json:"tokens"`
}

type authTokens struct {
	AccessToken string `json:"access_token"`
	AccountID   string `json:"account_id,omitempty"`
}

type usagePayload struct {
	Email     string             `json:"email,omitempty"`
	PlanType  string             `json:"plan_type,omitempty"`
	RateLimit *usageLimitDetails `json:"rate_limit,omitempty"`
	Credits   *usageCredits      `json:"credits,omitempty"`
}

type usageLimitDetails struct {
	Allowed         bool             `json:"allowed"`
	LimitReached    bool             `json:"limit_reached"`
	PrimaryWindow   *usageWindowInfo `json:"primary_window,omitempty"`
	SecondaryWindow *usageWindowInfo `json:"secondary_window,omitempty"`
}

type usageWindowInfo struct {
	UsedPercent        shared.FlexFloat `json:"used_percent"`
	LimitWindowSeconds int              `json:"limit_window_seconds"`
	ResetAt            int64            `json:"reset_at"`
}

type usageCredits struct {
	HasCredits bool `json:"has_credits"`
	Unlimited  bool `json:"unlimited"`
	Balance    any  `json:"balance"`
}

func secondsToMinutes(seconds int) int {
	if seconds <= 0 {
		return 0
	}
	return (seconds + 59) / 60
}

func toWindow(w *usageWindowInfo, now time.Time) *core.RateWindow {
	if w == nil || !w.UsedPercent.Valid {
		return nil
	}
	return core.WindowFromUtilization(w.UsedPercent.Value, secondsToMinutes(w.LimitWindowSeconds), core.EpochTime(float64(w.ResetAt)), now)
}

// balance is the remaining credit balance, when the account has a finite one.
func (c *usageCredits) balance() (float64, bool) {
	if c == nil || !c.HasCredits || c.Unlimited {
		return 0, false
	}
	return shared.AnyFloat(c.Balance)
}

func planName(plan string) string {
	plan = strings.TrimSpace(plan)
	if plan == "" {
		return ""
	}
	return "ChatGPT " + strings.ToUpper(plan[:1]) + plan[1:]
}

func toSnapshot(accountID string, p usagePayload, now time.Time) (core.UsageSnapshot, error) {
	if p.RateLimit == nil {
		return core.UsageSnapshot{}, core.Errorf(core.KindMalformed, "usage response has no rate_limit")
	}
	primary := toWindow(p.RateLimit.PrimaryWindow, now)
	secondary := toWindow(p.RateLimit.SecondaryWindow, now)
	if primary == nil && secondary == nil {
		return core.UsageSnapshot{}, core.Errorf(core.KindMalformed, "usage response has no rate-limit windows")
	}

	opts := []core.SnapshotOption{
		core.WithPrimary(primary),
		core.WithSecondary(secondary),
		core.WithIdentity(core.AccountIdentity{Email: p.Email, LoginMethod: planName(p.PlanType)}),
		core.WithSource(string(core.SourceOAuth)),
		core.WithUpdatedAt(now),
	}
	if balance, ok := p.Credits.balance(); ok {
		opts = append(opts, core.WithCredits(balance))
	}
	return core.NewUsageSnapshot(providerID, accountID, opts...), nil
}
