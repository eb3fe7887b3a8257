package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

const gaugeWidth = 24

// Usage thresholds, as used percent.
const (
	warnUsed = 70.0
	critUsed = 90.0
)

var (
	colorText  = lipgloss.Color("#CDD6F4")
	colorDim   = lipgloss.Color("#585B70")
	colorTrack = lipgloss.Color("#45475A")
	colorTitle = lipgloss.Color("#B4BEFE")
	colorOK    = lipgloss.Color("#A6E3A1")
	colorWarn  = lipgloss.Color("#F9E2AF")
	colorCrit  = lipgloss.Color("#F38BA8")
	colorAuth  = lipgloss.Color("#FAB387")
)

// styles renders recipe output. The zero-colour variant is used when stdout
// is not a terminal.
type styles struct {
	plain bool
	title lipgloss.Style
	label lipgloss.Style
	dim   lipgloss.Style
	err   lipgloss.Style
	auth  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	plain := true
	if f, ok := w.(*os.File); ok {
		plain = !term.IsTerminal(int(f.Fd()))
	}
	if plain {
		s := lipgloss.NewStyle()
		return styles{plain: true, title: s, label: s, dim: s, err: s, auth: s}
	}
	return styles{
		title: lipgloss.NewStyle().Foreground(colorTitle).Bold(true),
		label: lipgloss.NewStyle().Foreground(colorText).Width(10),
		dim:   lipgloss.NewStyle().Foreground(colorDim),
		err:   lipgloss.NewStyle().Foreground(colorCrit),
		auth:  lipgloss.NewStyle().Foreground(colorAuth),
	}
}

func usageColor(used float64) lipgloss.Color {
	switch {
	case used >= critUsed:
		return colorCrit
	case used >= warnUsed:
		return colorWarn
	}
	return colorOK
}

// gauge fills left to right as usage grows.
func (s styles) gauge(used float64, width int) string {
	used = core.ClampPercent(used)
	filled := int(used / 100 * float64(width))
	empty := width - filled
	pct := fmt.Sprintf("%5.1f%%", used)
	if s.plain {
		return "[" + strings.Repeat("#", filled) + strings.Repeat(".", empty) + "] " + pct
	}
	color := usageColor(used)
	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("━", filled)) +
		lipgloss.NewStyle().Foreground(colorTrack).Render(strings.Repeat("━", empty))
	return bar + " " + lipgloss.NewStyle().Foreground(color).Bold(true).Render(pct)
}

func (s styles) window(name string, w *core.RateWindow, now time.Time) string {
	var b strings.Builder
	b.WriteString("  " + s.label.Render(fmt.Sprintf("%-10s", name)) + " " + s.gauge(w.UsedPercent, gaugeWidth))
	if w.WindowMinutes != nil {
		b.WriteString(s.dim.Render("  " + formatMinutes(*w.WindowMinutes)))
	}
	switch {
	case w.ResetsAt != nil:
		b.WriteString(s.dim.Render("  resets in " + formatDuration(w.ResetsAt.Sub(now))))
	case w.ResetDescription != "":
		b.WriteString(s.dim.Render("  resets " + w.ResetDescription))
	}
	return b.String()
}

func renderSnapshot(out io.Writer, s styles, snap core.UsageSnapshot, now time.Time) {
	header := s.title.Render(snap.ProviderID)
	if snap.AccountID != "" && snap.AccountID != snap.ProviderID {
		header += " " + s.dim.Render("("+snap.AccountID+")")
	}
	if snap.Source != "" {
		header += " " + s.dim.Render("via "+snap.Source)
	}
	fmt.Fprintln(out, header)

	if id := snap.Identity; id != nil {
		parts := []string{}
		for _, v := range []string{id.Email, id.Organization, id.LoginMethod} {
			if v != "" {
				parts = append(parts, v)
			}
		}
		fmt.Fprintln(out, "  "+s.dim.Render(strings.Join(parts, " · ")))
	}
	for _, row := range []struct {
		name string
		w    *core.RateWindow
	}{{"primary", snap.Primary}, {"secondary", snap.Secondary}, {"tertiary", snap.Tertiary}} {
		if row.w != nil {
			fmt.Fprintln(out, s.window(row.name, row.w, now))
		}
	}
	if c := snap.Cost; c != nil {
		line := fmt.Sprintf("%.2f", c.Used)
		if c.Limit > 0 {
			line += fmt.Sprintf(" / %.2f", c.Limit)
		}
		line += " " + c.CurrencyCode
		if c.Period != "" {
			line += " (" + strings.ToLower(c.Period) + ")"
		}
		fmt.Fprintln(out, "  "+s.label.Render(fmt.Sprintf("%-10s", "cost"))+" "+line)
	}
	if snap.Credits != nil {
		fmt.Fprintln(out, "  "+s.label.Render(fmt.Sprintf("%-10s", "credits"))+" "+fmt.Sprintf("%.2f", *snap.Credits))
	}
}

func renderError(out io.Writer, s styles, err error) {
	style := s.err
	if k := core.KindOf(err); k == core.KindAuth || k == core.KindNoCredentials {
		style = s.auth
	}
	fmt.Fprintln(out, style.Render(core.UserMessage(err)))
}

func formatMinutes(m int) string {
	switch {
	case m%(24*60) == 0 && m >= 7*24*60 && m%(7*24*60) == 0:
		return fmt.Sprintf("%dw window", m/(7*24*60))
	case m%(24*60) == 0:
		return fmt.Sprintf("%dd window", m/(24*60))
	case m%60 == 0:
		return fmt.Sprintf("%dh window", m/60)
	}
	return fmt.Sprintf("%dm window", m)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	d = d.Round(time.Minute)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	mins := int((d - time.Duration(hours)*time.Hour) / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
