package status

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"tools.zach/dev/keepwarm/internal/limits"
	"tools.zach/dev/keepwarm/internal/usage"
)

// ///////////////////////////////////////////////
// SwiftBar Output
// ///////////////////////////////////////////////

// Colors used in menu lines.
const (
	ColorOK      = "#2e7d32"
	ColorWarn    = "#ef6c00"
	ColorFull    = "#c62828"
	ColorDim     = "#8a8a8a"
	ColorUnknown = "#9e9e9e"
)

// Options configures the action lines.
type Options struct {
	// Executable is the keepwarm binary invoked by menu actions.
	Executable string
	// DataDir, when set, is passed to every action with --data-dir.
	DataDir string
	// PauseMinutes is the duration of the pause action.
	PauseMinutes int
}

// Action is a clickable menu line that runs keepwarm.
type Action struct {
	Title string
	Args  []string
}

// Actions returns the menu actions in display order.
func Actions(opts Options) []Action {
	pause := opts.PauseMinutes
	if pause <= 0 {
		pause = 30
	}
	return []Action{
		{Title: "Launch now", Args: []string{"tick", "--force"}},
		{Title: fmt.Sprintf("Pause %dm", pause), Args: []string{"tick", "--pause-minutes", strconv.Itoa(pause)}},
		{Title: "Resume", Args: []string{"tick", "--resume"}},
	}
}

// Lines renders s as SwiftBar plugin output: a title line, a separator,
// detail lines, and action lines.
func Lines(s Snapshot, opts Options) []string {
	var out []string
	add := func(text string, params ...string) {
		out = append(out, menuLine(text, params...))
	}

	five, seven := windows(s.Limits)
	stale := s.Limits.Stale

	// Title.
	titleColor := ColorUnknown
	title := "CC --"
	if five != nil {
		title = fmt.Sprintf("CC %s", percent(five.Utilization))
		titleColor = utilizationColor(five.Utilization)
	}
	if s.State.Paused(s.Now) {
		title += " ⏸"
	}
	if stale {
		titleColor = ColorDim
	}
	add(title, "color="+titleColor)
	out = append(out, "---")

	// Limits.
	for _, w := range []struct {
		name string
		l    *limits.UsageLimit
	}{{"5-hour", five}, {"7-day", seven}} {
		if w.l == nil {
			add(w.name+": unknown", "color="+ColorUnknown)
			continue
		}
		text := fmt.Sprintf("%s: %s", w.name, percent(w.l.Utilization))
		if w.l.ResetsAt != nil {
			text += " · resets " + clock(*w.l.ResetsAt, s.Now)
		}
		color := utilizationColor(w.l.Utilization)
		if stale {
			color = ColorDim
		}
		add(text, "color="+color)
	}
	if src := limitsSource(s.Limits); src != "" {
		params := []string{"size=12"}
		if stale {
			params = append(params, "color="+ColorDim)
		}
		add(src, params...)
	}

	// Activity and launches.
	if s.Activity.OK {
		add("Last activity: " + ago(s.Now.Sub(s.Activity.At)))
	} else {
		add("Last activity: unknown", "color="+ColorUnknown)
	}
	add(launchLine(s))
	if s.State.Paused(s.Now) {
		add("Paused until "+clock(time.UnixMilli(*s.State.PauseUntil), s.Now), "color="+ColorWarn)
	}

	// Cost.
	if s.Usage != nil {
		out = append(out, "---")
		for _, l := range costLines(s.Usage, s.Now) {
			add(l.text, l.params...)
		}
	}

	if s.LastLog != "" {
		out = append(out, "---")
		add("Log: "+truncate(s.LastLog, 80), "size=11", "color="+ColorDim)
	}

	// Actions.
	out = append(out, "---")
	for _, a := range Actions(opts) {
		add(a.Title, actionParams(a, opts)...)
	}
	add("Refresh", "refresh=true")
	return out
}

// Write renders s to w, one line each.
func Write(w io.Writer, s Snapshot, opts Options) error {
	for _, l := range Lines(s, opts) {
		if _, err := io.WriteString(w, l+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// ///////////////////////////////////////////////
// Line Builders
// ///////////////////////////////////////////////

type line struct {
	text   string
	params []string
}

func costLines(h *usage.History, now time.Time) []line {
	var out []line
	today, ok := h.Today(now)
	if !ok {
		out = append(out, line{text: "Today: no usage data", params: []string{"color=" + ColorUnknown}})
	} else {
		text := "Today: " + money(today)
		if d, ok := h.Delta(now); ok && math.Abs(d) >= 0.005 {
			text += fmt.Sprintf(" (%s since last refresh)", signedMoney(d))
		}
		out = append(out, line{text: text})
	}
	if month, ok := h.Month(now); ok {
		out = append(out, line{text: "Month: " + money(month)})
	}

	var missing []string
	if ok {
		missing = append(missing, today.MissingPricing...)
	}
	if month, ok := h.Month(now); ok {
		missing = append(missing, month.MissingPricing...)
	}
	if missing = lo.Uniq(missing); len(missing) > 0 {
		slices.Sort(missing)
		out = append(out, line{
			text:   "⚠ No pricing for " + strings.Join(missing, ", "),
			params: []string{"color=" + ColorWarn},
		})
	}
	if source := sourceLabel(today, ok); source != "" {
		out = append(out, line{text: source, params: []string{"size=12", "color=" + ColorDim}})
	}
	return out
}

func launchLine(s Snapshot) string {
	if s.State.LastLaunch == 0 {
		return "Last launch: never"
	}
	y, m, d := s.Now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, s.Now.Location())
	return fmt.Sprintf("Last launch: %s (%d today)",
		ago(s.Now.Sub(time.UnixMilli(s.State.LastLaunch))), s.State.LaunchesSince(midnight))
}

func limitsSource(r limits.Result) string {
	if r.Limits == nil {
		switch r.Status {
		case limits.TokenExpired:
			return "Limits: token expired, sign in to Claude"
		case limits.NoCredential:
			return "Limits: no credential"
		default:
			return "Limits: unavailable"
		}
	}
	if r.Status == limits.LiveFetchOK {
		return "Limits: live"
	}
	text := "Limits: cached " + ago(r.Age)
	if r.Stale {
		text += " (stale)"
	}
	if r.Status == limits.TokenExpired {
		text += ", token expired"
	}
	return text
}

func sourceLabel(b usage.Bucket, ok bool) string {
	if !ok || b.Source == "" {
		return ""
	}
	return "Source: " + b.Source
}

func actionParams(a Action, opts Options) []string {
	exe := opts.Executable
	if exe == "" {
		exe = "keepwarm"
	}
	args := a.Args
	if opts.DataDir != "" {
		args = append(append([]string{}, args...), "--data-dir", opts.DataDir)
	}
	params := []string{"bash=" + quoteParam(exe)}
	for i, arg := range args {
		params = append(params, fmt.Sprintf("param%d=%s", i+1, quoteParam(arg)))
	}
	return append(params, "terminal=false", "refresh=true")
}

// ///////////////////////////////////////////////
// Formatting
// ///////////////////////////////////////////////

// menuLine joins text and parameters, keeping text free of the parameter
// separator.
func menuLine(text string, params ...string) string {
	text = strings.NewReplacer("|", "¦", "\n", " ", "\r", " ").Replace(text)
	if len(params) == 0 {
		return text
	}
	return text + " | " + strings.Join(params, " ")
}

func quoteParam(v string) string {
	if strings.ContainsAny(v, " \t\"") {
		return strconv.Quote(v)
	}
	return v
}

func windows(r limits.Result) (*limits.UsageLimit, *limits.UsageLimit) {
	if r.Limits == nil {
		return nil, nil
	}
	return r.Limits.FiveHour, r.Limits.SevenDay
}

func utilizationColor(u float64) string {
	switch {
	case math.IsNaN(u) || math.IsInf(u, 0):
		return ColorUnknown
	case u >= 80:
		return ColorFull
	case u >= 50:
		return ColorWarn
	default:
		return ColorOK
	}
}

func percent(u float64) string {
	if math.IsNaN(u) || math.IsInf(u, 0) {
		return "?%"
	}
	return fmt.Sprintf("%.0f%%", u)
}

// clock shows a time of day, with the weekday when not today.
func clock(t, now time.Time) string {
	t = t.In(now.Location())
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	if ty == ny && tm == nm && td == nd {
		return t.Format("15:04")
	}
	return t.Format("Mon 15:04")
}

// ago renders a duration as a coarse age.
func ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		h := int(d.Hours())
		if m := int(d.Minutes()) % 60; m > 0 {
			return fmt.Sprintf("%dh %dm ago", h, m)
		}
		return fmt.Sprintf("%dh ago", h)
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func money(b usage.Bucket) string {
	if b.CostUSD == nil {
		return "n/a"
	}
	return fmt.Sprintf("$%.2f", *b.CostUSD)
}

func signedMoney(d float64) string {
	if d < 0 {
		return fmt.Sprintf("-$%.2f", -d)
	}
	return fmt.Sprintf("+$%.2f", d)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
