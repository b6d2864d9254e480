package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"tools.zach/dev/keepwarm/internal/config"
	"tools.zach/dev/keepwarm/internal/keepalive"
	"tools.zach/dev/keepwarm/internal/logger"
	"tools.zach/dev/keepwarm/internal/watch"
)

// ///////////////////////////////////////////////
// run
// ///////////////////////////////////////////////

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &loopFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the keepalive daemon",
		Long:  "run ticks the keepalive loop on an interval until interrupted. Only one daemon may run per data directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(g, func(cfg *config.Config) error { return f.apply(cmd, cfg) })
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runDaemon(ctx, a, f.options(a.cfg))
		},
	}
	f.register(cmd)
	return cmd
}

// runDaemon holds the PID lock and runs the scheduler until ctx ends. A
// pause or resume request in opts is applied once before scheduling starts.
func runDaemon(ctx context.Context, a *app, opts keepalive.Options) error {
	lock, err := acquirePID(a.paths)
	if err != nil {
		return err
	}
	defer lock.release()

	log := a.log
	log.Info("keepwarm starting", "version", resolveVersion(), "data_dir", a.paths.Root,
		"interval_minutes", a.cfg.Keepalive.IntervalMinutes)

	loop := a.loop()
	if opts.PauseMinutes > 0 || opts.Resume {
		d := loop.Tick(ctx, opts)
		log.Info("applied operator command", "action", d.Action.String())
		opts.PauseMinutes, opts.Resume = 0, false
	}

	w, err := watch.New(a.paths.State(), watch.WithLogger(log.With("component", "watch")))
	if err != nil {
		return fmt.Errorf("watch state file: %w", err)
	}
	defer w.Close()
	if w.Polling() {
		log.Info("using polling mode for state file changes")
	}

	s := &keepalive.Scheduler{
		Loop:     loop,
		Options:  opts,
		Interval: time.Duration(a.cfg.Keepalive.IntervalMinutes) * time.Minute,
		Changes:  w,
		Logger:   log.With("component", "scheduler"),
	}
	if err := s.Run(ctx); err != nil {
		logger.Fail(log, "keepwarm stopped", "error", err)
		return err
	}
	log.Info("keepwarm stopped")
	return nil
}
