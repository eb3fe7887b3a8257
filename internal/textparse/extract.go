package textparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

var (
	percentPattern  = regexp.MustCompile(`(?i)(\d{1,3}(?:\.\d+)?)\s*%\s*(left|remaining|used)?`)
	creditsPattern  = regexp.MustCompile(`(?i)\bcredits?\s*(?:balance|remaining|left)?\s*[:=]?\s*\$?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	durationPattern = regexp.MustCompile(`(?i)(\d+)\s*(d|h|m|s)\b`)
	resetPattern    = regexp.MustCompile(`(?i)\bresets?\b\s*(?:at|on)?\s*:?\s*`)
)

// Percent is a percentage read from text; Left marks "% left" style figures.
type Percent struct {
	Value float64
	Left  bool
}

// Used converts to a used-percent in [0, 100].
func (p Percent) Used() float64 {
	if p.Left {
		return core.ClampPercent(100 - p.Value)
	}
	return core.ClampPercent(p.Value)
}

// PercentOf returns the first percentage on line. Unqualified figures are
// read as used.
func PercentOf(line string) (Percent, bool) {
	m := percentPattern.FindStringSubmatch(line)
	if m == nil {
		return Percent{}, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Percent{}, false
	}
	qualifier := strings.ToLower(m[2])
	return Percent{Value: v, Left: qualifier == "left" || qualifier == "remaining"}, true
}

// PercentIn returns the first percentage found in lines.
func PercentIn(lines []string) (Percent, bool) {
	for _, line := range lines {
		if p, ok := PercentOf(line); ok {
			return p, true
		}
	}
	return Percent{}, false
}

// ResetPhrase returns the human reset text on line, e.g. "in 3h 10m" from
// "5h limit: 42% left, resets in 3h 10m".
func ResetPhrase(line string) string {
	loc := resetPattern.FindStringIndex(line)
	if loc == nil {
		return ""
	}
	rest := strings.TrimSpace(line[loc[1]:])
	for strings.Count(rest, ")") > strings.Count(rest, "(") {
		i := strings.LastIndex(rest, ")")
		rest = strings.TrimSpace(rest[:i])
	}
	return strings.TrimRight(rest, ".,;")
}

// ResetPhraseIn returns the first reset phrase found in lines.
func ResetPhraseIn(lines []string) string {
	for _, line := range lines {
		if phrase := ResetPhrase(line); phrase != "" {
			return phrase
		}
	}
	return ""
}

// Credits extracts a single labelled credit figure from the whole text.
func Credits(text string) (float64, bool) {
	m := creditsPattern.FindStringSubmatch(StripANSI(text))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseDurationPhrase sums "2d 3h 10m 5s" style components.
func ParseDurationPhrase(s string) (time.Duration, bool) {
	matches := durationPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0, false
	}
	var total time.Duration
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		switch strings.ToLower(m[2]) {
		case "d":
			total += time.Duration(n) * 24 * time.Hour
		case "h":
			total += time.Duration(n) * time.Hour
		case "m":
			total += time.Duration(n) * time.Minute
		case "s":
			total += time.Duration(n) * time.Second
		}
	}
	return total, true
}

// ResetTime derives an absolute reset from a relative phrase such as "in 3h 10m".
func ResetTime(phrase string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(strings.TrimSpace(phrase))
	if !strings.HasPrefix(lower, "in ") {
		return time.Time{}, false
	}
	d, ok := ParseDurationPhrase(lower)
	if !ok || d <= 0 {
		return time.Time{}, false
	}
	return now.Add(d), true
}
