package core

import "time"

// WindowFromUtilization maps a provider utilization figure onto a RateWindow.
// A window whose reset time has already passed reports zero usage, since the
// provider has not refreshed the figure yet.
func WindowFromUtilization(utilization float64, minutes int, resetsAt *time.Time, now time.Time) *RateWindow {
	opts := []WindowOption{WithWindowMinutes(minutes)}
	if resetsAt != nil {
		if !resetsAt.After(now) {
			utilization = 0
		} else {
			opts = append(opts, WithResetsAt(*resetsAt))
		}
	}
	w := NewRateWindow(utilization, opts...)
	return &w
}

// SlotBuckets places two independent quota buckets into display slots.
// The prominent bucket always owns primary; the other bucket always owns
// secondary, even when the prominent one is missing, so a given bucket keeps
// the same slot across accounts.
func SlotBuckets(prominent, other *RateWindow) (primary, secondary *RateWindow) {
	return prominent, other
}

// ParseResetTime parses an ISO-8601 reset timestamp; unparseable input yields nil.
func ParseResetTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// EpochTime converts epoch seconds or milliseconds; non-positive values yield nil.
func EpochTime(v float64) *time.Time {
	if v <= 0 {
		return nil
	}
	var t time.Time
	if v > 1e12 {
		t = time.UnixMilli(int64(v)).UTC()
	} else {
		t = time.Unix(int64(v), 0).UTC()
	}
	return &t
}
