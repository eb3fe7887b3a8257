package factory

import (
	"strings"
	"time"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
)

type usageEnvelope struct {
	Usage *subscriptionUsage `json:"usage"`
}

type subscriptionUsage struct {
	StartDate shared.FlexFloat `json:"startDate"`
	EndDate   shared.FlexFloat `json:"endDate"`
	Standard  *tokenBucket     `json:"standard"`
	Premium   *tokenBucket     `json:"premium"`
}

type tokenBucket struct {
	UserTokens     shared.FlexFloat `json:"userTokens"`
	OrgTokens      shared.FlexFloat `json:"orgTotalTokensUsed"`
	TotalAllowance shared.FlexFloat `json:"totalAllowance"`
	UsedRatio      shared.FlexFloat `json:"usedRatio"`
}

// usedPercent prefers usedRatio (0–1) over userTokens/totalAllowance. A
// bucket with neither has no allowance on this plan.
func (b *tokenBucket) usedPercent() (float64, bool) {
	if b == nil {
		return 0, false
	}
	if b.UsedRatio.Valid {
		return b.UsedRatio.Value * 100, true
	}
	if b.TotalAllowance.Valid && b.TotalAllowance.Value > 0 {
		return b.UserTokens.Or(0) / b.TotalAllowance.Value * 100, true
	}
	return 0, false
}

func (u *subscriptionUsage) period() (minutes int, end *time.Time) {
	start := core.EpochTime(u.StartDate.Or(0))
	end = core.EpochTime(u.EndDate.Or(0))
	if start != nil && end != nil && end.After(*start) {
		minutes = int(end.Sub(*start).Round(time.Minute) / time.Minute)
	}
	return minutes, end
}

func (u *subscriptionUsage) window(b *tokenBucket, now time.Time) *core.RateWindow {
	pct, ok := b.usedPercent()
	if !ok {
		return nil
	}
	minutes, end := u.period()
	return core.WindowFromUtilization(pct, minutes, end, now)
}

func toSnapshot(accountID string, env usageEnvelope, email, source string, now time.Time) (core.UsageSnapshot, error) {
	if env.Usage == nil {
		return core.UsageSnapshot{}, core.Errorf(core.KindMalformed, "response has no usage object")
	}
	standard := env.Usage.window(env.Usage.Standard, now)
	premium := env.Usage.window(env.Usage.Premium, now)
	if standard == nil && premium == nil {
		return core.UsageSnapshot{}, core.Errorf(core.KindMalformed, "usage has no token allowance")
	}
	primary, secondary := core.SlotBuckets(standard, premium)
	return core.NewUsageSnapshot(providerID, accountID,
		core.WithPrimary(primary),
		core.WithSecondary(secondary),
		core.WithIdentity(core.AccountIdentity{Email: strings.TrimSpace(email)}),
		core.WithSource(source),
		core.WithUpdatedAt(now),
	), nil
}
