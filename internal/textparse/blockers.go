package textparse

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

var versionArrow = regexp.MustCompile(`v?(\d+\.\d+\.\d+(?:-[0-9A-Za-z.]+)?)\s*(?:->|→|to)\s*v?(\d+\.\d+\.\d+(?:-[0-9A-Za-z.]+)?)`)

// Blockers lists phrases a CLI prints instead of usage figures.
type Blockers struct {
	NotReady          []string
	UpdateRequired    []string
	UpdateInstruction string
}

// Check returns a data-not-ready or update-required error when text carries
// one of the known phrases, and nil otherwise.
func (b Blockers) Check(text string) error {
	lower := strings.ToLower(StripANSI(text))

	for _, phrase := range b.UpdateRequired {
		if phrase == "" || !strings.Contains(lower, strings.ToLower(phrase)) {
			continue
		}
		err := core.Errorf(core.KindUpdateRequired, "%s", updateDetail(lower, phrase))
		err.Hint = b.UpdateInstruction
		return err
	}
	for _, phrase := range b.NotReady {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return core.Errorf(core.KindDataNotReady, "CLI reported %q", phrase)
		}
	}
	return nil
}

func updateDetail(text, phrase string) string {
	current, latest, ok := VersionUpgrade(text)
	if !ok {
		return fmt.Sprintf("CLI reported %q", phrase)
	}
	return fmt.Sprintf("installed %s, %s required", current, latest)
}

// VersionUpgrade finds a "current -> latest" version pair in text and reports
// it only when latest is actually newer.
func VersionUpgrade(text string) (current, latest string, ok bool) {
	m := versionArrow.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	current, latest = "v"+m[1], "v"+m[2]
	if !semver.IsValid(current) || !semver.IsValid(latest) {
		return "", "", false
	}
	if semver.Compare(current, latest) >= 0 {
		return "", "", false
	}
	return current, latest, true
}
