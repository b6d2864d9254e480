package status

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
	"tools.zach/dev/keepwarm/internal/limits"
)

// ///////////////////////////////////////////////
// Terminal View
// ///////////////////////////////////////////////

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	key     lipgloss.Style
	detail  lipgloss.Style
	meta    lipgloss.Style
	warning lipgloss.Style
	section lipgloss.Style
	fill    lipgloss.Style
	empty   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true),
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		key:     lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		detail:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		meta:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		warning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section: lipgloss.NewStyle().MarginTop(1),
		fill:    lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		empty:   lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Render returns a styled multi-line view of s for a terminal.
func Render(s Snapshot) string {
	st := newStyles()
	lines := []string{st.title.Render("keepwarm")}

	lines = append(lines, st.header.Render(lowerFirst(limitsSource(s.Limits))))

	five, seven := windows(s.Limits)
	var limitLines []string
	for _, w := range []struct {
		name string
		l    *limits.UsageLimit
	}{{"5-hour", five}, {"7-day", seven}} {
		limitLines = append(limitLines, renderLimit(w.name, w.l, s, st))
	}
	lines = append(lines, st.section.Render(lipgloss.JoinVertical(lipgloss.Left, limitLines...)))

	var info []string
	if s.Activity.OK {
		info = append(info, st.detail.Render("last activity: "+ago(s.Now.Sub(s.Activity.At))))
	} else {
		info = append(info, st.empty.Render("last activity: unknown"))
	}
	info = append(info, st.detail.Render(lowerFirst(launchLine(s))))
	if s.State.Paused(s.Now) {
		info = append(info, st.warning.Render("paused until "+clock(time.UnixMilli(*s.State.PauseUntil), s.Now)))
	}
	lines = append(lines, st.section.Render(lipgloss.JoinVertical(lipgloss.Left, info...)))

	if s.Usage != nil {
		var cost []string
		for _, l := range costLines(s.Usage, s.Now) {
			style := st.detail
			switch {
			case strings.HasPrefix(l.text, "⚠"):
				style = st.warning
			case strings.HasPrefix(l.text, "Source"):
				style = st.meta
			}
			cost = append(cost, style.Render(l.text))
		}
		lines = append(lines, st.section.Render(lipgloss.JoinVertical(lipgloss.Left, cost...)))
	}

	if s.LastLog != "" {
		lines = append(lines, st.section.Render(st.meta.Render("log: "+truncate(s.LastLog, 100))))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// WriteTerminal renders s to w followed by a newline.
func WriteTerminal(w io.Writer, s Snapshot) error {
	_, err := fmt.Fprintln(w, Render(s))
	return err
}

func renderLimit(name string, l *limits.UsageLimit, s Snapshot, st styles) string {
	label := st.key.Render(fmt.Sprintf("%-7s", name))
	if l == nil {
		return lipgloss.JoinHorizontal(lipgloss.Top, label, " ", st.empty.Render("unknown"))
	}
	pct := lipgloss.NewStyle().Foreground(lipgloss.Color(utilizationColor(l.Utilization)))
	if s.Limits.Stale {
		pct = st.meta
	}
	parts := []string{label, " ", progressBar(l.Utilization, 24, st), " ", pct.Render(fmt.Sprintf("%4s", percent(l.Utilization)))}
	if l.ResetsAt != nil {
		parts = append(parts, " ", st.meta.Render("(resets "+clock(*l.ResetsAt, s.Now)+")"))
	}
	line := lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	if s.Limits.Stale {
		line += " " + st.warning.Render("[stale]")
	}
	return line
}

func progressBar(used float64, width int, st styles) string {
	if math.IsNaN(used) || math.IsInf(used, 0) {
		used = 0
	}
	used = math.Max(0, math.Min(100, used))
	filled := int(math.Round(used / 100 * float64(width)))
	return "[" + st.fill.Render(strings.Repeat("█", filled)) + st.empty.Render(strings.Repeat("░", width-filled)) + "]"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
