// Package textparse turns rendered terminal output into plain lines and pulls
// usage figures out of them.
package textparse

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// oscPattern catches OSC sequences terminated by BEL, which some CLIs emit
// for window titles and hyperlinks.
var oscPattern = regexp.MustCompile(`\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)

// StripANSI removes escape and control sequences and normalizes line endings.
// Only '\n' and '\t' survive as control characters, so StripANSI is idempotent.
func StripANSI(s string) string {
	if s == "" {
		return ""
	}
	s = oscPattern.ReplaceAllString(s, "")
	s = ansi.Strip(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r < 0x20, r == 0x7f, r >= 0x80 && r <= 0x9f:
			return -1
		}
		return r
	}, s)
}

// Lines returns the trimmed, non-empty lines of s with box-drawing and
// progress-bar glyphs removed.
func Lines(s string) []string {
	var out []string
	for _, line := range strings.Split(StripANSI(s), "\n") {
		line = strings.Map(func(r rune) rune {
			if r >= 0x2500 && r <= 0x259f {
				return ' '
			}
			return r
		}, line)
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
