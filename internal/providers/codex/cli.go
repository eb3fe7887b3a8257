package codex

import (
	"regexp"
	"strings"
	"time"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
	"github.com/janekbaraniewski/quotaprobe/internal/textparse"
)

const (
	fiveHourMinutes = 5 * 60
	weekMinutes     = 7 * 24 * 60
)

var cliClassifier = textparse.Classifier{
	FiveHour: []string{"5h limit", "5-hour"},
	Weekly:   []string{"weekly limit", "7-day"},
}

var cliBlockers = textparse.Blockers{
	NotReady:          []string{"data not available yet"},
	UpdateRequired:    []string{"update required", "please update"},
	UpdateInstruction: "npm install -g @openai/codex@latest",
}

var accountLine = regexp.MustCompile(`(?i)account:\s*(\S+@\S+)(?:\s*\(([^)]+)\))?`)

func cliRecipe(binary string) shared.CLIRecipe {
	return shared.CLIRecipe{
		Binary:      binary,
		Script:      []string{"/status"},
		ScriptDelay: time.Second,
		Blockers:    cliBlockers,
	}
}

type cliStatus struct {
	FiveHour *core.RateWindow
	Weekly   *core.RateWindow
	Credits  *float64
	Identity core.AccountIdentity
}

// parseCLI reads the /status panel, where each limit sits on one line:
// "5h limit: [████░░] 42% left (resets 21:34)".
func parseCLI(screen string, now time.Time) (cliStatus, error) {
	var out cliStatus
	for _, sec := range cliClassifier.Sections(textparse.Lines(screen)) {
		pct, ok := textparse.PercentIn(sec.Lines)
		if !ok {
			continue
		}
		reset := textparse.ResetPhraseIn(sec.Lines)
		switch {
		case sec.Class == textparse.ClassFiveHour && out.FiveHour == nil:
			out.FiveHour = cliWindow(pct, fiveHourMinutes, reset, now)
		case sec.Class == textparse.ClassWeekly && out.Weekly == nil:
			out.Weekly = cliWindow(pct, weekMinutes, reset, now)
		}
	}
	if out.FiveHour == nil && out.Weekly == nil {
		return cliStatus{}, core.Errorf(core.KindMalformed, "no rate limits on /status screen")
	}
	if v, ok := textparse.Credits(screen); ok {
		out.Credits = &v
	}
	if m := accountLine.FindStringSubmatch(textparse.StripANSI(screen)); m != nil {
		out.Identity = core.AccountIdentity{Email: m[1], LoginMethod: planName(strings.ToLower(m[2]))}
	}
	return out, nil
}

func cliWindow(pct textparse.Percent, minutes int, reset string, now time.Time) *core.RateWindow {
	opts := []core.WindowOption{core.WithWindowMinutes(minutes), core.WithResetDescription(reset)}
	if at, ok := textparse.ResetTime(reset, now); ok {
		opts = append(opts, core.WithResetsAt(at))
	}
	w := core.NewRateWindow(pct.Used(), opts...)
	return &w
}

func (s cliStatus) snapshot(accountID string, now time.Time) core.UsageSnapshot {
	opts := []core.SnapshotOption{
		core.WithPrimary(s.FiveHour),
		core.WithSecondary(s.Weekly),
		core.WithIdentity(s.Identity),
		core.WithSource(string(core.SourceCLI)),
		core.WithUpdatedAt(now),
	}
	if s.Credits != nil {
		opts = append(opts, core.WithCredits(*s.Credits))
	}
	return core.NewUsageSnapshot(providerID, accountID, opts...)
}
