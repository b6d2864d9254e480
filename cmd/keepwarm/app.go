package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	rootpkg "tools.zach/dev/keepwarm"
	"tools.zach/dev/keepwarm/internal/config"
	"tools.zach/dev/keepwarm/internal/credentials"
	"tools.zach/dev/keepwarm/internal/keepalive"
	"tools.zach/dev/keepwarm/internal/limits"
	"tools.zach/dev/keepwarm/internal/logger"
	"tools.zach/dev/keepwarm/internal/paths"
	"tools.zach/dev/keepwarm/internal/pricing"
	"tools.zach/dev/keepwarm/internal/transcript"
	"tools.zach/dev/keepwarm/internal/usage"
)

// ///////////////////////////////////////////////
// Loop Flags
// ///////////////////////////////////////////////

// loopFlags are the decision-loop flags shared by run and tick. Flags that
// mirror a config key only override it when set on the command line.
type loopFlags struct {
	intervalMinutes       int
	activeMinutes         int
	helloDelaySeconds     int
	cooldownMinutes       int
	reauthCooldownMinutes int
	staleMinutes          int
	scanDepth             int
	readBytes             int64
	transcript            string

	pauseMinutes int
	resume       bool
	dryRun       bool
	force        bool
}

func (f *loopFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVar(&f.intervalMinutes, "interval-minutes", 0, "minutes between daemon ticks")
	fs.IntVar(&f.activeMinutes, "active-minutes", 0, "skip when the transcript saw activity this recently (0 disables)")
	fs.IntVar(&f.helloDelaySeconds, "hello-delay-seconds", 0, "seconds before the priming line is sent")
	fs.IntVar(&f.cooldownMinutes, "cooldown-minutes", 0, "minimum minutes between launches")
	fs.IntVar(&f.reauthCooldownMinutes, "reauth-cooldown-minutes", 0, "minimum minutes between re-auth app opens")
	fs.IntVar(&f.staleMinutes, "stale-minutes", 0, "age in minutes beyond which cached limits are stale")
	fs.IntVar(&f.scanDepth, "scan-depth", 0, "directory levels searched for transcripts")
	fs.Int64Var(&f.readBytes, "read-bytes", 0, "bytes read from the end of the transcript")
	fs.StringVar(&f.transcript, "transcript", "", "use this transcript instead of searching for one")
	fs.IntVar(&f.pauseMinutes, "pause-minutes", 0, "pause launches for this many minutes")
	fs.BoolVar(&f.resume, "resume", false, "clear an active pause")
	fs.BoolVar(&f.dryRun, "dry-run", false, "evaluate without launching")
	fs.BoolVar(&f.force, "force", false, "launch even when limits are exhausted or stale")
}

// apply overlays the flags set on cmd onto cfg.
func (f *loopFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	ints := []struct {
		flag string
		src  int
		dst  *int
	}{
		{"interval-minutes", f.intervalMinutes, &cfg.Keepalive.IntervalMinutes},
		{"active-minutes", f.activeMinutes, &cfg.Keepalive.ActiveMinutes},
		{"hello-delay-seconds", f.helloDelaySeconds, &cfg.Keepalive.HelloDelaySeconds},
		{"cooldown-minutes", f.cooldownMinutes, &cfg.Keepalive.CooldownMinutes},
		{"reauth-cooldown-minutes", f.reauthCooldownMinutes, &cfg.Keepalive.ReauthCooldownMinutes},
		{"stale-minutes", f.staleMinutes, &cfg.Keepalive.StaleMinutes},
		{"scan-depth", f.scanDepth, &cfg.Scan.Depth},
	}
	for _, i := range ints {
		if changed(i.flag) {
			*i.dst = i.src
		}
	}
	if changed("read-bytes") {
		cfg.Scan.ReadBytes = f.readBytes
	}
	if changed("transcript") {
		cfg.Scan.Transcript = f.transcript
	}
	if f.pauseMinutes < 0 {
		return fmt.Errorf("--pause-minutes must be >= 0, got %d", f.pauseMinutes)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// options converts the effective configuration into per-tick options.
func (f *loopFlags) options(cfg *config.Config) keepalive.Options {
	k := cfg.Keepalive
	return keepalive.Options{
		PauseMinutes:   f.pauseMinutes,
		Resume:         f.resume,
		ActiveWindow:   time.Duration(k.ActiveMinutes) * time.Minute,
		Cooldown:       time.Duration(k.CooldownMinutes) * time.Minute,
		ReauthCooldown: time.Duration(k.ReauthCooldownMinutes) * time.Minute,
		StaleAfter:     staleAfter(cfg),
		DryRun:         f.dryRun,
		Force:          f.force,
	}
}

func staleAfter(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Keepalive.StaleMinutes) * time.Minute
}

// ///////////////////////////////////////////////
// Application Setup
// ///////////////////////////////////////////////

// app is the loaded configuration and logger of one invocation.
type app struct {
	paths  DataPaths
	cfg    *config.Config
	log    *slog.Logger
	closer io.Closer
}

// setup prepares the data directory, seeds and loads the config, and opens
// the log. overlay, when non-nil, applies command-line overrides before the
// logger is built.
func setup(g *globalFlags, overlay func(*config.Config) error) (*app, error) {
	dp := DataPaths{Root: g.dataDir}
	if err := os.MkdirAll(dp.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	seedConfig(dp)

	cfg, err := config.Load(dp.Root, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if overlay != nil {
		if err := overlay(cfg); err != nil {
			return nil, err
		}
	}

	level := logger.ParseLevel(cfg.Log.Level)
	var tee io.Writer
	if g.verbose {
		level = min(level, slog.LevelDebug)
		tee = os.Stderr
	}
	log, closer, err := logger.NewLogger(logger.Options{
		Path:      dp.Log(),
		Level:     level,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Tee:       tee,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)
	return &app{paths: dp, cfg: cfg, log: log, closer: closer}, nil
}

// seedConfig writes the commented default config when none exists.
func seedConfig(dp DataPaths) {
	if _, err := os.Stat(dp.Config()); !errors.Is(err, os.ErrNotExist) {
		return
	}
	if err := os.WriteFile(dp.Config(), rootpkg.DefaultConfigTOML, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write default config: %v\n", err)
	}
}

func (a *app) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// ///////////////////////////////////////////////
// Component Wiring
// ///////////////////////////////////////////////

func (a *app) stateStore() *keepalive.StateStore {
	return &keepalive.StateStore{Path: a.paths.State()}
}

func (a *app) activity() *transcript.ActivitySource {
	return &transcript.ActivitySource{
		Transcript: paths.ExpandHome(a.cfg.Scan.Transcript),
		Dirs:       a.cfg.ScanDirs(),
		Depth:      a.cfg.Scan.Depth,
		Window:     a.cfg.Scan.ReadBytes,
		Logger:     a.log.With("component", "transcript"),
	}
}

func (a *app) limits() *limits.Client {
	l := a.cfg.Limits
	return limits.NewClient(limits.ClientConfig{
		Endpoint:     l.Endpoint,
		Credentials:  credentials.Default(l.KeychainService, paths.ExpandHome(l.CredentialsFile)),
		CachePath:    a.paths.LimitsCache(),
		LegacyCaches: a.cfg.LegacyCachePaths(),
		Timeout:      time.Duration(l.TimeoutSeconds) * time.Second,
		Logger:       a.log,
	})
}

// aggregator builds the cost aggregator. cacheFor overrides the configured
// reuse window when non-negative.
func (a *app) aggregator(cacheFor time.Duration) *usage.Aggregator {
	c := a.cfg.Cost
	if cacheFor < 0 {
		cacheFor = time.Duration(c.CacheMinutes) * time.Minute
	}
	log := a.log.With("component", "usage")
	tool := usage.NewCostTool(c.Command, c.DailyArgs, c.MonthlyArgs)
	tool.Logger = log
	return &usage.Aggregator{
		HistoryPath: a.paths.UsageHistory(),
		Pricing: &pricing.Store{
			Path:   a.cfg.PricingPath(a.paths),
			URL:    c.PricingURL,
			Logger: a.log.With("component", "pricing"),
		},
		WriteMode: c.WriteMode,
		Tool:      tool,
		Scanner: &usage.Scanner{
			Dirs:   a.cfg.ScanDirs(),
			Depth:  a.cfg.Scan.Depth,
			Logger: log,
		},
		CacheFor: cacheFor,
		Logger:   log,
	}
}

func (a *app) loop() *keepalive.Loop {
	k := a.cfg.Keepalive
	return &keepalive.Loop{
		State:    a.stateStore(),
		Activity: a.activity(),
		Limits:   a.limits(),
		Launcher: &keepalive.Launcher{
			Command:    a.cfg.Companion.Command,
			Args:       a.cfg.Companion.Args,
			ExtraPath:  a.cfg.CompanionPath(),
			HelloText:  k.HelloText,
			HelloDelay: time.Duration(k.HelloDelaySeconds) * time.Second,
			Logger:     a.log.With("component", "launcher"),
		},
		Opener:  keepalive.SystemOpener{},
		AppName: a.cfg.Companion.AppName,
		Logger:  a.log.With("component", "keepalive"),
	}
}
