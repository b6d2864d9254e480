// Package status gathers the daemon's signals and renders them for the
// SwiftBar/xbar menu bar or a terminal. Rendering never modifies the
// keepalive state.
package status

import (
	"context"
	"log/slog"
	"time"

	"tools.zach/dev/keepwarm/internal/keepalive"
	"tools.zach/dev/keepwarm/internal/limits"
	"tools.zach/dev/keepwarm/internal/logger"
	"tools.zach/dev/keepwarm/internal/transcript"
	"tools.zach/dev/keepwarm/internal/usage"
)

// Snapshot is everything a status view shows.
type Snapshot struct {
	Now      time.Time
	Activity transcript.Activity
	Limits   limits.Result
	State    keepalive.State
	// Usage is nil when cost tracking is unavailable.
	Usage *usage.History
	// LastLog is the most recent notable log message.
	LastLog string
}

// UsageSource refreshes the usage history.
type UsageSource interface {
	Refresh(ctx context.Context, now time.Time) *usage.History
}

// Collector assembles a [Snapshot].
type Collector struct {
	Activity keepalive.ActivityProber
	Limits   keepalive.LimitsFetcher
	State    *keepalive.StateStore
	Usage    UsageSource
	LogPath  string
	// StaleAfter is the age beyond which cached limits are shown dimmed.
	StaleAfter time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// Collect probes every signal. Missing signals leave zero values.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	s := Snapshot{Now: now}

	if c.Activity != nil {
		s.Activity = c.Activity.Probe(ctx)
	}
	if c.Limits != nil {
		s.Limits = c.Limits.Fetch(ctx, limits.Options{MaxAge: c.StaleAfter, AllowStale: true})
	}
	if c.State != nil {
		st, err := c.State.Load()
		if err != nil && c.Logger != nil {
			c.Logger.Debug("keepalive state unreadable", "error", err)
		}
		s.State = st
	}
	if c.Usage != nil {
		s.Usage = c.Usage.Refresh(ctx, now)
	}
	if c.LogPath != "" {
		s.LastLog = logger.LastMessage(c.LogPath, slog.LevelInfo)
	}
	return s
}
