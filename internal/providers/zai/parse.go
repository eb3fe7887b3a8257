package zai

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
)

const (
	limitTypeTokens = "TOKENS_LIMIT"
	limitTypeTime   = "TIME_LIMIT"
)

// Window unit codes reported by the monitor API.
const (
	unitDay    = 1
	unitHour   = 3
	unitMinute = 5
	unitWeek   = 6
)

type monitorEnvelope struct {
	Code    any             `json:"code"`
	Msg     string          `json:"msg"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type quotaData struct {
	Limits   []quotaLimit `json:"limits"`
	PlanName string       `json:"planName"`
}

type quotaLimit struct {
	Type          string           `json:"type"`
	Unit          shared.FlexFloat `json:"unit"`
	Number        shared.FlexFloat `json:"number"`
	Usage         shared.FlexFloat `json:"usage"`
	CurrentValue  shared.FlexFloat `json:"currentValue"`
	Remaining     shared.FlexFloat `json:"remaining"`
	Percentage    shared.FlexFloat `json:"percentage"`
	NextResetTime shared.FlexFloat `json:"nextResetTime"`
}

func (e monitorEnvelope) code() string {
	switch v := e.Code.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprint(v)
	}
}

// ok reports a successful envelope. Some gateways omit success and only
// send code 200.
func (e monitorEnvelope) ok() bool {
	if e.Success {
		return true
	}
	switch e.code() {
	case "0", "200":
		return true
	case "":
		return e.Msg == ""
	}
	return false
}

func isNoPackage(code, msg string) bool {
	if code == "1113" {
		return true
	}
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "insufficient balance") ||
		strings.Contains(msg, "no resource package") ||
		strings.Contains(msg, "no active coding package")
}

func noPackageError() *core.FetchError {
	e := core.Errorf(core.KindNoCredentials, "no active coding package")
	e.Hint = "subscribe to a GLM coding plan at z.ai"
	return e
}

// decodeEnvelope unwraps the monitor envelope into its quota data.
func decodeEnvelope(env monitorEnvelope) (quotaData, error) {
	if !env.ok() {
		if isNoPackage(env.code(), env.Msg) {
			return quotaData{}, noPackageError()
		}
		return quotaData{}, core.Errorf(core.KindServer, "monitor API error %s: %s", env.code(), shared.TruncateForError(env.Msg))
	}
	var data quotaData
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return quotaData{}, noPackageError()
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return quotaData{}, core.Errorf(core.KindMalformed, "decoding quota data: %w", err)
	}
	return data, nil
}

func windowMinutes(unit, number float64) int {
	n := int(number)
	if n <= 0 {
		n = 1
	}
	switch int(unit) {
	case unitDay:
		return n * 24 * 60
	case unitHour:
		return n * 60
	case unitMinute:
		return n
	case unitWeek:
		return n * 7 * 24 * 60
	}
	return 0
}

// usedPercent prefers the reported percentage and otherwise derives it from
// currentValue (or remaining) against the usage cap.
func (l quotaLimit) usedPercent() (float64, bool) {
	if l.Percentage.Valid {
		return l.Percentage.Value, true
	}
	if !l.Usage.Valid || l.Usage.Value <= 0 {
		return 0, false
	}
	switch {
	case l.CurrentValue.Valid:
		return l.CurrentValue.Value / l.Usage.Value * 100, true
	case l.Remaining.Valid:
		return (l.Usage.Value - l.Remaining.Value) / l.Usage.Value * 100, true
	}
	return 0, false
}

func (l quotaLimit) window(now time.Time) *core.RateWindow {
	pct, ok := l.usedPercent()
	if !ok {
		return nil
	}
	var reset *time.Time
	if l.NextResetTime.Valid && l.NextResetTime.Value > 0 {
		reset = core.EpochTime(l.NextResetTime.Value)
	}
	return core.WindowFromUtilization(pct, windowMinutes(l.Unit.Value, l.Number.Value), reset, now)
}

func toSnapshot(accountID string, data quotaData, now time.Time) (core.UsageSnapshot, error) {
	if len(data.Limits) == 0 {
		return core.UsageSnapshot{}, noPackageError()
	}
	var tokens, timed *core.RateWindow
	for _, l := range data.Limits {
		switch strings.ToUpper(strings.TrimSpace(l.Type)) {
		case limitTypeTokens:
			if tokens == nil {
				tokens = l.window(now)
			}
		case limitTypeTime:
			if timed == nil {
				timed = l.window(now)
			}
		}
	}
	if tokens == nil && timed == nil {
		return core.UsageSnapshot{}, core.Errorf(core.KindMalformed, "no usable quota limits in response")
	}
	primary, secondary := core.SlotBuckets(tokens, timed)
	return core.NewUsageSnapshot(providerID, accountID,
		core.WithPrimary(primary),
		core.WithSecondary(secondary),
		core.WithIdentity(core.AccountIdentity{LoginMethod: strings.TrimSpace(data.PlanName)}),
		core.WithSource(string(core.SourceAPI)),
		core.WithUpdatedAt(now),
	), nil
}
