// Package keepalive decides when to launch the companion CLI and does so.
//
// Each [Loop.Tick] evaluates, in order: operator pause/resume commands, an
// active pause, recent transcript activity, the usage limits (opening the
// companion app when the token has expired), the launch cooldown, and
// finally launches the companion with a priming line. Every failure
// degrades to a skipped tick. [Scheduler] drives ticks on an interval and
// when the state file is changed by another process.
package keepalive

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"tools.zach/dev/keepwarm/internal/limits"
	"tools.zach/dev/keepwarm/internal/transcript"
)

// ///////////////////////////////////////////////
// Collaborators
// ///////////////////////////////////////////////

// ActivityProber reports the latest transcript activity.
type ActivityProber interface {
	Probe(ctx context.Context) transcript.Activity
}

// LimitsFetcher returns the current usage limits.
type LimitsFetcher interface {
	Fetch(ctx context.Context, opts limits.Options) limits.Result
}

// ///////////////////////////////////////////////
// Options & Decision
// ///////////////////////////////////////////////

// Options are the per-tick settings.
type Options struct {
	// PauseMinutes, when positive, pauses launches for that long and ends
	// the tick.
	PauseMinutes int
	// Resume clears an active pause and ends the tick.
	Resume bool
	// ActiveWindow skips the tick when the transcript saw activity this
	// recently. Zero disables the check.
	ActiveWindow time.Duration
	// Cooldown is the minimum time between launches.
	Cooldown time.Duration
	// ReauthCooldown is the minimum time between re-authentication prompts.
	ReauthCooldown time.Duration
	// StaleAfter is the age beyond which cached limits are stale.
	StaleAfter time.Duration
	// DryRun evaluates everything but does not launch.
	DryRun bool
	// Force ignores exhausted or stale limits.
	Force bool
}

// Action is what a tick did.
type Action int

const (
	Skipped Action = iota
	Launched
	Paused
	Resumed
)

var actionNames = [...]string{"skipped", "launched", "paused", "resumed"}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// Skip reasons.
const (
	ReasonBusy            = "tick already in progress"
	ReasonPaused          = "paused"
	ReasonActive          = "recent activity"
	ReasonNoLimits        = "usage limits unavailable"
	ReasonLimitsExhausted = "usage limit reached"
	ReasonLimitsStale     = "usage limits stale"
	ReasonCooldown        = "launch cooldown"
	ReasonDryRun          = "dry run"
	ReasonLaunchFailed    = "launch failed"
)

// Decision is the outcome of one tick.
type Decision struct {
	Action Action
	// Reason explains a skip.
	Reason string
	At     time.Time
	// Launch is set when the companion was started.
	Launch *Launch
	// Limits is the limits lookup, when one was made.
	Limits *limits.Result
	// State is the keepalive state after the tick.
	State State
}

// ///////////////////////////////////////////////
// Loop
// ///////////////////////////////////////////////

// Loop holds the collaborators of the decision procedure. A Loop runs at
// most one tick at a time; overlapping calls are skipped, not queued.
type Loop struct {
	State    *StateStore
	Activity ActivityProber
	Limits   LimitsFetcher
	Launcher Starter
	Opener   AppOpener
	// AppName is the desktop app opened for re-authentication.
	AppName string
	Logger  *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time

	inProgress atomic.Bool
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Busy reports whether a tick is running.
func (l *Loop) Busy() bool { return l.inProgress.Load() }

// Tick runs one evaluation.
func (l *Loop) Tick(ctx context.Context, opts Options) Decision {
	if !l.inProgress.CompareAndSwap(false, true) {
		return Decision{Action: Skipped, Reason: ReasonBusy, At: l.now()}
	}
	defer l.inProgress.Store(false)

	d := l.tick(ctx, opts)
	log := l.logger()
	if d.Action == Skipped {
		log.Debug("tick skipped", "reason", d.Reason)
	} else {
		log.Info("tick", "action", d.Action.String())
	}
	return d
}

func (l *Loop) tick(ctx context.Context, opts Options) Decision {
	log := l.logger()
	now := l.now()
	d := Decision{At: now}

	st, err := l.State.Load()
	if err != nil {
		log.Warn("keepalive state unreadable, using defaults", "path", l.State.Path, "error", err)
	}
	d.State = st

	// 1. Operator commands.
	if opts.Resume {
		st.PauseUntil = nil
		l.save(st)
		d.Action, d.State = Resumed, st
		return d
	}
	if opts.PauseMinutes > 0 {
		until := now.Add(time.Duration(opts.PauseMinutes) * time.Minute).UnixMilli()
		st.PauseUntil = &until
		l.save(st)
		d.Action, d.State = Paused, st
		return d
	}

	// 2. Paused.
	if st.Paused(now) {
		return skip(d, ReasonPaused)
	}

	// 3. Recent activity.
	if opts.ActiveWindow > 0 && l.Activity != nil {
		if a := l.Activity.Probe(ctx); a.OK && now.Sub(a.At) < opts.ActiveWindow {
			log.Debug("transcript active", "path", a.Path, "at", a.At)
			return skip(d, ReasonActive)
		}
	}

	// 4. Usage limits.
	if l.Limits == nil {
		return skip(d, ReasonNoLimits)
	}
	res := l.Limits.Fetch(ctx, limits.Options{MaxAge: opts.StaleAfter, AllowStale: true})
	d.Limits = &res
	if res.Status == limits.TokenExpired {
		if l.reauth(ctx, &st, now, opts.ReauthCooldown) {
			d.State = st
		}
	}
	if res.Limits == nil {
		return skip(d, ReasonNoLimits)
	}

	// 5. Headroom.
	if !opts.Force {
		if !res.Limits.OK() {
			return skip(d, ReasonLimitsExhausted)
		}
		if res.Stale {
			return skip(d, ReasonLimitsStale)
		}
	}

	// 6. Cooldown.
	if st.LastLaunch > 0 && now.Sub(time.UnixMilli(st.LastLaunch)) < opts.Cooldown {
		return skip(d, ReasonCooldown)
	}

	// 7. Launch.
	if opts.DryRun {
		return skip(d, ReasonDryRun)
	}
	if l.Launcher == nil {
		return skip(d, ReasonLaunchFailed)
	}
	launch, err := l.Launcher.Launch(ctx)
	if err != nil {
		log.Warn("companion launch failed", "error", err)
		d.Launch = launch
		return skip(d, ReasonLaunchFailed)
	}
	st.RecordLaunch(now)
	l.save(st)
	d.Action, d.Launch, d.State = Launched, launch, st
	return d
}

// reauth opens the companion app unless that happened within cooldown. It
// records the attempt only when the app opened, and reports whether st
// changed.
func (l *Loop) reauth(ctx context.Context, st *State, now time.Time, cooldown time.Duration) bool {
	log := l.logger()
	if st.LastReauthOpen != nil && now.Sub(time.UnixMilli(*st.LastReauthOpen)) < cooldown {
		log.Debug("re-auth prompt suppressed by cooldown")
		return false
	}
	if l.Opener == nil {
		return false
	}
	if err := l.Opener.Open(ctx, l.AppName); err != nil {
		log.Warn("could not open companion app for re-auth", "app", l.AppName, "error", err)
		return false
	}
	ms := now.UnixMilli()
	st.LastReauthOpen = &ms
	l.save(*st)
	log.Info("opened companion app to renew token", "app", l.AppName)
	return true
}

func (l *Loop) save(st State) {
	if err := l.State.Save(st); err != nil {
		l.logger().Warn("failed to persist keepalive state", "error", err)
	}
}

func skip(d Decision, reason string) Decision {
	d.Action, d.Reason = Skipped, reason
	return d
}
