package main

import (
	"os"

	"github.com/spf13/cobra"
	"tools.zach/dev/keepwarm/internal/status"
)

// ///////////////////////////////////////////////
// status
// ///////////////////////////////////////////////

func newStatusCmd(g *globalFlags) *cobra.Command {
	var swiftbar bool
	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"swiftbar"},
		Short:   "Print status for SwiftBar or the terminal",
		Long:    "status gathers activity, limits, cost, and keepalive state without changing it. On a terminal it prints a styled view; otherwise it prints SwiftBar plugin lines.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(g, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			c := &status.Collector{
				Activity:   a.activity(),
				Limits:     a.limits(),
				State:      a.stateStore(),
				Usage:      a.aggregator(-1),
				LogPath:    a.paths.Log(),
				StaleAfter: staleAfter(a.cfg),
				Logger:     a.log.With("component", "status"),
			}
			snap := c.Collect(cmd.Context())

			out := cmd.OutOrStdout()
			if !swiftbar && cmd.CalledAs() != "swiftbar" && out == os.Stdout && status.IsTerminal(os.Stdout) {
				return status.WriteTerminal(out, snap)
			}
			return status.Write(out, snap, menuOptions(cmd, g, a))
		},
	}
	cmd.Flags().BoolVar(&swiftbar, "swiftbar", false, "always print SwiftBar lines")
	return cmd
}

// menuOptions points menu actions back at this executable and data dir.
func menuOptions(cmd *cobra.Command, g *globalFlags, a *app) status.Options {
	opts := status.Options{PauseMinutes: a.cfg.Keepalive.PauseMinutes}
	if exe, err := os.Executable(); err == nil {
		opts.Executable = exe
	}
	if f := cmd.Flag("data-dir"); f != nil && f.Changed {
		opts.DataDir = g.dataDir
	}
	return opts
}
