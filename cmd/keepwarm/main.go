// Package main implements keepwarm, a daemon that keeps a Claude Code
// session's usage window open by launching the CLI when nothing else has
// used it recently, and a SwiftBar plugin that reports on it.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"
	"tools.zach/dev/keepwarm/internal/paths"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// resolveVersion returns [version], or "dev+<hash>" from the embedded VCS
// info when no version was stamped.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Root Command
// ///////////////////////////////////////////////

// globalFlags are shared by every subcommand.
type globalFlags struct {
	dataDir string
	verbose bool
}

// defaultDataDir returns ~/.keepwarm, or ./.keepwarm without a home
// directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           paths.BinaryName,
		Short:         "Keep a Claude Code usage window warm",
		Long:          "keepwarm launches the Claude Code CLI when the current usage window has gone quiet, respecting usage limits, cooldowns, and pauses, and renders its state for SwiftBar.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.dataDir, "data-dir", defaultDataDir(), "directory for config, state, caches, and logs")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log at debug level and copy log lines to stderr")

	root.AddCommand(
		newRunCmd(g),
		newTickCmd(g),
		newStatusCmd(g),
		newUsageCmd(g),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), resolveVersion())
			return err
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "keepwarm: %v\n", err)
		os.Exit(1)
	}
}
