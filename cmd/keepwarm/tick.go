package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"tools.zach/dev/keepwarm/internal/config"
	"tools.zach/dev/keepwarm/internal/keepalive"
)

// ///////////////////////////////////////////////
// tick
// ///////////////////////////////////////////////

func newTickCmd(g *globalFlags) *cobra.Command {
	f := &loopFlags{}
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Evaluate the keepalive loop once",
		Long:  "tick runs a single evaluation and, when it launches the companion, waits until the priming line has been sent. --pause-minutes and --resume record an operator command and end the tick.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(g, func(cfg *config.Config) error { return f.apply(cmd, cfg) })
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			d := a.loop().Tick(ctx, f.options(a.cfg))
			waitPrimed(ctx, d, primeTimeout(a.cfg))
			return printDecision(cmd.OutOrStdout(), d)
		},
	}
	f.register(cmd)
	return cmd
}

// primeTimeout bounds how long tick waits for priming after a launch.
func primeTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Keepalive.HelloDelaySeconds)*time.Second + 10*time.Second
}

// waitPrimed blocks until a launched companion is primed or failed, ctx
// ends, or timeout passes. The process must outlive the priming write.
func waitPrimed(ctx context.Context, d keepalive.Decision, timeout time.Duration) {
	if d.Launch == nil {
		return
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-d.Launch.Done():
	case <-ctx.Done():
	case <-t.C:
	}
}

// printDecision writes a one-line summary of d.
func printDecision(w io.Writer, d keepalive.Decision) error {
	var line string
	switch d.Action {
	case keepalive.Launched:
		line = fmt.Sprintf("launched (pid %d, %s)", d.Launch.PID(), d.Launch.Phase())
		if err := d.Launch.Err(); err != nil {
			line += ": " + err.Error()
		}
	case keepalive.Paused:
		line = "paused"
		if p := d.State.PauseUntil; p != nil {
			line += " until " + time.UnixMilli(*p).Format("15:04")
		}
	case keepalive.Resumed:
		line = "resumed"
	default:
		line = "skipped: " + d.Reason
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
