package textparse

import "strings"

type Class int

const (
	ClassNone Class = iota
	ClassFiveHour
	ClassWeekly
	ClassSecondary
)

func (c Class) String() string {
	switch c {
	case ClassFiveHour:
		return "five-hour"
	case ClassWeekly:
		return "weekly"
	case ClassSecondary:
		return "secondary"
	}
	return "none"
}

// Classifier assigns a line to at most one window class by case-insensitive
// keyword match. Secondary keywords are checked first, so a line naming a
// secondary window never counts as the generic weekly window.
type Classifier struct {
	FiveHour  []string
	Weekly    []string
	Secondary []string
}

func (c Classifier) Classify(line string) Class {
	lower := strings.ToLower(line)
	switch {
	case containsAny(lower, c.Secondary):
		return ClassSecondary
	case containsAny(lower, c.FiveHour):
		return ClassFiveHour
	case containsAny(lower, c.Weekly):
		return ClassWeekly
	}
	return ClassNone
}

// Section pairs a classified heading with the lines that follow it up to the
// next classified line. Some CLIs print the percentage on the line below the
// label.
type Section struct {
	Class Class
	Lines []string
}

func (c Classifier) Sections(lines []string) []Section {
	var out []Section
	for _, line := range lines {
		if class := c.Classify(line); class != ClassNone {
			out = append(out, Section{Class: class, Lines: []string{line}})
			continue
		}
		if len(out) > 0 {
			last := &out[len(out)-1]
			last.Lines = append(last.Lines, line)
		}
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
