package core

import (
	"math"
	"time"
)

// RateWindow is one rate-limited quota window (five-hour, weekly, token bucket, ...).
// UsedPercent is always within [0, 100]; construct it with NewRateWindow.
type RateWindow struct {
	UsedPercent      float64    `json:"used_percent"`
	WindowMinutes    *int       `json:"window_minutes,omitempty"`
	ResetsAt         *time.Time `json:"resets_at,omitempty"`
	ResetDescription string     `json:"reset_description,omitempty"`
}

type WindowOption func(*RateWindow)

func NewRateWindow(usedPercent float64, opts ...WindowOption) RateWindow {
	w := RateWindow{UsedPercent: ClampPercent(usedPercent)}
	for _, opt := range opts {
		if opt != nil {
			opt(&w)
		}
	}
	return w
}

func WithWindowMinutes(minutes int) WindowOption {
	return func(w *RateWindow) {
		if minutes > 0 {
			w.WindowMinutes = &minutes
		}
	}
}

func WithResetsAt(t time.Time) WindowOption {
	return func(w *RateWindow) {
		if !t.IsZero() {
			w.ResetsAt = &t
		}
	}
}

func WithResetDescription(desc string) WindowOption {
	return func(w *RateWindow) {
		w.ResetDescription = desc
	}
}

func (w RateWindow) RemainingPercent() float64 {
	return 100 - ClampPercent(w.UsedPercent)
}

// ClampPercent bounds v to [0, 100]; NaN maps to 0.
func ClampPercent(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ProviderCostSnapshot is metered spend, kept apart from percentage quotas.
type ProviderCostSnapshot struct {
	Used         float64    `json:"used"`
	Limit        float64    `json:"limit"`
	CurrencyCode string     `json:"currency_code"`
	Period       string     `json:"period"`
	ResetsAt     *time.Time `json:"resets_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (c ProviderCostSnapshot) UsedPercent() float64 {
	if c.Limit <= 0 {
		return 0
	}
	return ClampPercent(c.Used / c.Limit * 100)
}

type AccountIdentity struct {
	Email        string `json:"email,omitempty"`
	Organization string `json:"organization,omitempty"`
	LoginMethod  string `json:"login_method,omitempty"`
}

func (i AccountIdentity) IsZero() bool {
	return i.Email == "" && i.Organization == "" && i.LoginMethod == ""
}

// UsageSnapshot is the canonical result of one successful fetch. It is built
// once and replaced, never mutated, by the next fetch.
type UsageSnapshot struct {
	ProviderID string                `json:"provider_id"`
	AccountID  string                `json:"account_id"`
	Primary    *RateWindow           `json:"primary,omitempty"`
	Secondary  *RateWindow           `json:"secondary,omitempty"`
	Tertiary   *RateWindow           `json:"tertiary,omitempty"`
	Cost       *ProviderCostSnapshot `json:"cost,omitempty"`
	Credits    *float64              `json:"credits,omitempty"`
	Identity   *AccountIdentity      `json:"identity,omitempty"`
	Source     string                `json:"source,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

type SnapshotOption func(*UsageSnapshot)

func NewUsageSnapshot(providerID, accountID string, opts ...SnapshotOption) UsageSnapshot {
	s := UsageSnapshot{
		ProviderID: providerID,
		AccountID:  accountID,
		UpdatedAt:  time.Now(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

func WithPrimary(w *RateWindow) SnapshotOption {
	return func(s *UsageSnapshot) { s.Primary = w }
}

func WithSecondary(w *RateWindow) SnapshotOption {
	return func(s *UsageSnapshot) { s.Secondary = w }
}

func WithTertiary(w *RateWindow) SnapshotOption {
	return func(s *UsageSnapshot) { s.Tertiary = w }
}

func WithCost(c *ProviderCostSnapshot) SnapshotOption {
	return func(s *UsageSnapshot) { s.Cost = c }
}

func WithCredits(balance float64) SnapshotOption {
	return func(s *UsageSnapshot) { s.Credits = &balance }
}

func WithIdentity(id AccountIdentity) SnapshotOption {
	return func(s *UsageSnapshot) {
		if !id.IsZero() {
			s.Identity = &id
		}
	}
}

func WithSource(label string) SnapshotOption {
	return func(s *UsageSnapshot) { s.Source = label }
}

func WithUpdatedAt(t time.Time) SnapshotOption {
	return func(s *UsageSnapshot) { s.UpdatedAt = t }
}

// Windows returns the populated windows in slot order.
func (s UsageSnapshot) Windows() []RateWindow {
	var out []RateWindow
	for _, w := range []*RateWindow{s.Primary, s.Secondary, s.Tertiary} {
		if w != nil {
			out = append(out, *w)
		}
	}
	return out
}

// HighestUsedPercent returns the most consumed window, or -1 when the
// snapshot carries no windows.
func (s UsageSnapshot) HighestUsedPercent() float64 {
	worst := float64(-1)
	for _, w := range s.Windows() {
		if w.UsedPercent > worst {
			worst = w.UsedPercent
		}
	}
	return worst
}
