package cursor

import (
	"strings"
	"time"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
)

type usageSummary struct {
	BillingCycleStart string          `json:"billingCycleStart"`
	BillingCycleEnd   string          `json:"billingCycleEnd"`
	MembershipType    string          `json:"membershipType"`
	LimitType         string          `json:"limitType"`
	IndividualUsage   individualUsage `json:"individualUsage"`
}

type individualUsage struct {
	Plan     *planUsage     `json:"plan"`
	OnDemand *onDemandUsage `json:"onDemand"`
}

// planUsage amounts are in cents.
type planUsage struct {
	Enabled          bool             `json:"enabled"`
	Used             shared.FlexFloat `json:"used"`
	Limit            shared.FlexFloat `json:"limit"`
	Remaining        shared.FlexFloat `json:"remaining"`
	TotalPercentUsed shared.FlexFloat `json:"totalPercentUsed"`
}

type onDemandUsage struct {
	Enabled bool             `json:"enabled"`
	Used    shared.FlexFloat `json:"used"`
	Limit   shared.FlexFloat `json:"limit"`
}

type authMe struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// parseTimestamp accepts RFC 3339 or epoch seconds/milliseconds.
func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if v, ok := shared.ParseNumber(s); ok {
		return core.EpochTime(v)
	}
	return core.ParseResetTime(s)
}

func cycleMinutes(start, end *time.Time) int {
	if start == nil || end == nil || !end.After(*start) {
		return 0
	}
	return int(end.Sub(*start).Round(time.Minute) / time.Minute)
}

func (p *planUsage) usedPercent() (float64, bool) {
	if p == nil {
		return 0, false
	}
	if p.TotalPercentUsed.Valid {
		return p.TotalPercentUsed.Value, true
	}
	if p.Limit.Valid && p.Limit.Value > 0 && p.Used.Valid {
		return p.Used.Value / p.Limit.Value * 100, true
	}
	return 0, false
}

func (o *onDemandUsage) cost(end *time.Time, now time.Time) *core.ProviderCostSnapshot {
	if o == nil || !o.Enabled {
		return nil
	}
	return &core.ProviderCostSnapshot{
		Used:         o.Used.Or(0) / 100,
		Limit:        o.Limit.Or(0) / 100,
		CurrencyCode: "USD",
		Period:       "Billing cycle",
		ResetsAt:     end,
		UpdatedAt:    now,
	}
}

func membershipName(m string) string {
	m = strings.TrimSpace(m)
	if m == "" {
		return ""
	}
	return "Cursor " + strings.ToUpper(m[:1]) + strings.ReplaceAll(m[1:], "_", " ")
}

func toSnapshot(accountID string, u usageSummary, email, source string, now time.Time) (core.UsageSnapshot, error) {
	start, end := parseTimestamp(u.BillingCycleStart), parseTimestamp(u.BillingCycleEnd)

	var primary *core.RateWindow
	if pct, ok := u.IndividualUsage.Plan.usedPercent(); ok {
		primary = core.WindowFromUtilization(pct, cycleMinutes(start, end), end, now)
	}
	cost := u.IndividualUsage.OnDemand.cost(end, now)
	if primary == nil && cost == nil {
		return core.UsageSnapshot{}, core.Errorf(core.KindMalformed, "usage summary has no plan usage")
	}

	return core.NewUsageSnapshot(providerID, accountID,
		core.WithPrimary(primary),
		core.WithCost(cost),
		core.WithIdentity(core.AccountIdentity{Email: email, LoginMethod: membershipName(u.MembershipType)}),
		core.WithSource(source),
		core.WithUpdatedAt(now),
	), nil
}
