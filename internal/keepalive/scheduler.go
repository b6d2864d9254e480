package keepalive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
)

// ///////////////////////////////////////////////
// Scheduler
// ///////////////////////////////////////////////

// ChangeSource signals changes to the state file made by other processes.
type ChangeSource interface {
	Events() <-chan struct{}
}

// DefaultChangeRate limits watcher-triggered ticks.
var DefaultChangeRate = rate.Every(30 * time.Second)

// Scheduler runs the loop every Interval and after external state changes
// that lift a pause.
type Scheduler struct {
	Loop     *Loop
	Options  Options
	Interval time.Duration
	// Changes, when set, triggers a tick after another process resumes.
	Changes ChangeSource
	// Limiter caps watcher-triggered ticks. Defaults to one per 30 seconds.
	Limiter *rate.Limiter
	Logger  *slog.Logger
	// OnDecision observes every tick result.
	OnDecision func(Decision)
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Run ticks once immediately, then on the interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", s.Interval)
	}
	log := s.logger()
	limiter := s.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(DefaultChangeRate, 1)
	}

	cl := cronLogger{log}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.Interval), func() { s.tick(ctx, "interval") }); err != nil {
		return fmt.Errorf("schedule keepalive tick: %w", err)
	}

	var changes <-chan struct{}
	if s.Changes != nil {
		changes = s.Changes.Events()
	}
	lastPause := s.pauseUntil()

	s.tick(ctx, "startup")
	c.Start()
	log.Info("scheduler started", "interval", s.Interval)

	for {
		select {
		case <-ctx.Done():
			stopped := c.Stop()
			<-stopped.Done()
			log.Info("scheduler stopped")
			return nil
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			pause := s.pauseUntil()
			if pause == lastPause {
				continue
			}
			lastPause = pause
			if pause != 0 && pause > time.Now().UnixMilli() {
				log.Info("paused by another process", "until", time.UnixMilli(pause))
				continue
			}
			if !limiter.Allow() {
				log.Debug("resume tick rate limited")
				continue
			}
			log.Info("resumed by another process")
			go s.tick(ctx, "resume")
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	d := s.Loop.Tick(ctx, s.Options)
	s.logger().Debug("tick finished", "trigger", trigger, "action", d.Action.String(), "reason", d.Reason)
	if s.OnDecision != nil {
		s.OnDecision(d)
	}
}

// pauseUntil reads the persisted pause deadline, zero when unset.
func (s *Scheduler) pauseUntil() int64 {
	st, err := s.Loop.State.Load()
	if err != nil || st.PauseUntil == nil {
		return 0
	}
	return *st.PauseUntil
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
