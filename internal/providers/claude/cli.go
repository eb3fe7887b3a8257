package claude

import (
	"time"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
	"github.com/janekbaraniewski/quotaprobe/internal/textparse"
)

var cliClassifier = textparse.Classifier{
	FiveHour:  []string{"current session"},
	Weekly:    []string{"current week"},
	Secondary: []string{"opus", "sonnet"},
}

var cliBlockers = textparse.Blockers{
	NotReady:          []string{"loading usage", "usage data not available"},
	UpdateRequired:    []string{"claude update", "update required"},
	UpdateInstruction: "run `claude update`",
}

func cliRecipe(binary string) shared.CLIRecipe {
	return shared.CLIRecipe{
		Binary:      binary,
		Script:      []string{"/usage"},
		ScriptDelay: 1500 * time.Millisecond,
		Blockers:    cliBlockers,
		Persistent:  true,
	}
}

// cliUsage is what the /usage panel shows.
type cliUsage struct {
	Session *core.RateWindow
	Week    *core.RateWindow
	Model   *core.RateWindow
}

// parseCLI reads the /usage panel. Each heading is followed by a bar, a
// percentage and a reset line, possibly on separate lines.
func parseCLI(screen string, now time.Time) (cliUsage, error) {
	var out cliUsage
	for _, sec := range cliClassifier.Sections(textparse.Lines(screen)) {
		pct, ok := textparse.PercentIn(sec.Lines)
		if !ok {
			continue
		}
		var slot **core.RateWindow
		minutes := weekMinutes
		switch sec.Class {
		case textparse.ClassFiveHour:
			slot, minutes = &out.Session, fiveHourMinutes
		case textparse.ClassWeekly:
			slot = &out.Week
		case textparse.ClassSecondary:
			slot = &out.Model
		default:
			continue
		}
		if *slot != nil {
			continue
		}
		w := cliWindow(pct, minutes, textparse.ResetPhraseIn(sec.Lines), now)
		*slot = &w
	}
	if out.Session == nil && out.Week == nil {
		return cliUsage{}, core.Errorf(core.KindMalformed, "no session or weekly usage on /usage screen")
	}
	return out, nil
}

func cliWindow(pct textparse.Percent, minutes int, reset string, now time.Time) core.RateWindow {
	opts := []core.WindowOption{core.WithWindowMinutes(minutes), core.WithResetDescription(reset)}
	if at, ok := textparse.ResetTime(reset, now); ok {
		opts = append(opts, core.WithResetsAt(at))
	}
	return core.NewRateWindow(pct.Used(), opts...)
}
