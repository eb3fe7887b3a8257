package claude

import (
	"encoding/json"
	"time"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
)

const (
	fiveHourMinutes = 5 * 60
	weekMinutes     = 7 * 24 * 60
)

// tertiaryKeys picks the model-specific weekly bucket. The usage API has
// renamed it more than once.
var tertiaryKeys = shared.KeyStrategies{
	shared.FixedKey("seven_day_opus"),
	shared.AliasKeys("seven_day_sonnet", "seven_day_model"),
	shared.HeuristicKey("opus", "sonnet"),
}

type usageBucket struct {
	Utilization shared.FlexFloat `json:"utilization"`
	ResetsAt    string           `json:"resets_at"`
}

type extraUsage struct {
	IsEnabled    bool             `json:"is_enabled"`
	MonthlyLimit shared.FlexFloat `json:"monthly_limit"`
	UsedCredits  shared.FlexFloat `json:"used_credits"`
}

// usageResponse is the body of both the OAuth and the web usage endpoints.
type usageResponse struct {
	FiveHour    *usageBucket
	SevenDay    *usageBucket
	Tertiary    *usageBucket
	TertiaryKey string
	Extra       *extraUsage
}

func (u *usageResponse) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*u = usageResponse{}

	var err error
	if u.FiveHour, err = decodeBucket(obj["five_hour"]); err != nil {
		return err
	}
	if u.SevenDay, err = decodeBucket(obj["seven_day"]); err != nil {
		return err
	}
	if key, _, ok := tertiaryKeys.Resolve(obj, "five_hour", "seven_day", "extra_usage"); ok {
		if u.Tertiary, err = decodeBucket(obj[key]); err != nil {
			return err
		}
		u.TertiaryKey = key
	}
	if raw, ok := obj["extra_usage"]; ok && !isNull(raw) {
		var extra extraUsage
		if err := json.Unmarshal(raw, &extra); err != nil {
			return err
		}
		u.Extra = &extra
	}
	return nil
}

func decodeBucket(raw json.RawMessage) (*usageBucket, error) {
	if isNull(raw) {
		return nil, nil
	}
	var b usageBucket
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// spendLimit is the web overage_spend_limit body. Amounts are in cents.
type spendLimit struct {
	IsEnabled          bool             `json:"is_enabled"`
	MonthlyCreditLimit shared.FlexFloat `json:"monthly_credit_limit"`
	UsedCredits        shared.FlexFloat `json:"used_credits"`
	Currency           string           `json:"currency"`
}

type organization struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

type account struct {
	EmailAddress string `json:"email_address"`
}

func toWindow(b *usageBucket, minutes int, now time.Time) *core.RateWindow {
	if b == nil || !b.Utilization.Valid {
		return nil
	}
	return core.WindowFromUtilization(b.Utilization.Value, minutes, core.ParseResetTime(b.ResetsAt), now)
}

// windows maps the usage body onto fixed slots: five-hour, weekly, then the
// model-specific weekly bucket.
func (u usageResponse) windows(now time.Time) (primary, secondary, tertiary *core.RateWindow, err error) {
	primary = toWindow(u.FiveHour, fiveHourMinutes, now)
	secondary = toWindow(u.SevenDay, weekMinutes, now)
	tertiary = toWindow(u.Tertiary, weekMinutes, now)
	if primary == nil && secondary == nil {
		return nil, nil, nil, core.Errorf(core.KindMalformed, "usage response has no five_hour or seven_day window")
	}
	return primary, secondary, tertiary, nil
}

func monthlyCost(used, limit shared.FlexFloat, currency string, now time.Time) *core.ProviderCostSnapshot {
	if !used.Valid && !limit.Valid {
		return nil
	}
	if currency == "" {
		currency = "USD"
	}
	return &core.ProviderCostSnapshot{
		Used:         used.Or(0) / 100,
		Limit:        limit.Or(0) / 100,
		CurrencyCode: currency,
		Period:       "Monthly",
		UpdatedAt:    now,
	}
}

func (e *extraUsage) cost(now time.Time) *core.ProviderCostSnapshot {
	if e == nil || !e.IsEnabled {
		return nil
	}
	return monthlyCost(e.UsedCredits, e.MonthlyLimit, "USD", now)
}

func (s *spendLimit) cost(now time.Time) *core.ProviderCostSnapshot {
	if s == nil || !s.IsEnabled {
		return nil
	}
	return monthlyCost(s.UsedCredits, s.MonthlyCreditLimit, s.Currency, now)
}

// toSnapshot builds the canonical snapshot for an API usage body.
func toSnapshot(accountID string, u usageResponse, cost *core.ProviderCostSnapshot, id core.AccountIdentity, source string, now time.Time) (core.UsageSnapshot, error) {
	primary, secondary, tertiary, err := u.windows(now)
	if err != nil {
		return core.UsageSnapshot{}, err
	}
	return core.NewUsageSnapshot(providerID, accountID,
		core.WithPrimary(primary),
		core.WithSecondary(secondary),
		core.WithTertiary(tertiary),
		core.WithCost(cost),
		core.WithIdentity(id),
		core.WithSource(source),
		core.WithUpdatedAt(now),
	), nil
}
