// Package config provides configuration loading and defaults for keepwarm.
//
// Configuration is layered: built-in defaults, then config.toml in the data
// directory, then KEEPWARM_* environment variables, then command-line flags
// (applied by cmd/keepwarm). The package only knows the first three layers.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/keepwarm/internal/atomicfile"
	"tools.zach/dev/keepwarm/internal/migrate"
	"tools.zach/dev/keepwarm/internal/paths"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Keepalive holds the decision loop timing settings.
	Keepalive KeepaliveConfig `toml:"keepalive"`
	// Scan holds transcript discovery settings.
	Scan ScanConfig `toml:"scan"`
	// Companion describes the CLI that is launched and the GUI app used for re-auth.
	Companion CompanionConfig `toml:"companion"`
	// Limits holds usage-limits endpoint and cache settings.
	Limits LimitsConfig `toml:"limits"`
	// Cost holds cost aggregation and pricing settings.
	Cost CostConfig `toml:"cost"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// KeepaliveConfig holds the decision loop settings. All durations are whole
// minutes or seconds so the TOML stays readable.
type KeepaliveConfig struct {
	// IntervalMinutes is the period between ticks of the daemon.
	IntervalMinutes int `toml:"interval_minutes"`
	// ActiveMinutes skips a tick when the transcript saw activity this recently. 0 disables.
	ActiveMinutes int `toml:"active_minutes"`
	// HelloDelaySeconds is the wait between starting the companion and priming it.
	HelloDelaySeconds int `toml:"hello_delay_seconds"`
	// HelloText is the priming line written to the companion's stdin.
	HelloText string `toml:"hello_text"`
	// CooldownMinutes is the minimum gap between two launches.
	CooldownMinutes int `toml:"cooldown_minutes"`
	// ReauthCooldownMinutes is the minimum gap between two re-auth app opens.
	ReauthCooldownMinutes int `toml:"reauth_cooldown_minutes"`
	// StaleMinutes is the age beyond which cached limits are stale.
	StaleMinutes int `toml:"stale_minutes"`
	// PauseMinutes is the pause length offered by the menu-bar action.
	PauseMinutes int `toml:"pause_minutes"`
}

// ScanConfig holds transcript discovery settings.
type ScanConfig struct {
	// Depth is the maximum directory recursion depth below each base directory.
	Depth int `toml:"depth"`
	// ReadBytes is the size of the head/tail window read from a transcript.
	ReadBytes int64 `toml:"read_bytes"`
	// Dirs are extra base directories scanned after the built-in ones.
	Dirs []string `toml:"dirs"`
	// Transcript pins an explicit transcript file and disables discovery.
	Transcript string `toml:"transcript,omitempty"`
}

// CompanionConfig describes the companion CLI and GUI app.
type CompanionConfig struct {
	// Command is the executable launched to keep the session warm.
	Command string `toml:"command"`
	// Args are passed to Command.
	Args []string `toml:"args"`
	// ExtraPath entries are prepended to PATH for the child process.
	ExtraPath []string `toml:"extra_path"`
	// AppName is the GUI application opened when the OAuth token expired.
	AppName string `toml:"app_name"`
}

// LimitsConfig holds usage-limits endpoint and cache settings.
type LimitsConfig struct {
	// Endpoint is the OAuth usage endpoint.
	Endpoint string `toml:"endpoint"`
	// TimeoutSeconds bounds the whole request including retries.
	TimeoutSeconds int `toml:"timeout_seconds"`
	// CredentialsFile is the fallback OAuth credentials file.
	CredentialsFile string `toml:"credentials_file"`
	// KeychainService is the macOS keychain service holding the credentials.
	KeychainService string `toml:"keychain_service"`
	// LegacyCaches are older cache files consulted when the main cache is missing.
	LegacyCaches []string `toml:"legacy_caches"`
}

// CostConfig holds cost aggregation and pricing settings.
type CostConfig struct {
	// Command is the external cost tool. Empty disables it.
	Command string `toml:"command"`
	// DailyArgs are passed to Command for per-day rows.
	DailyArgs []string `toml:"daily_args"`
	// MonthlyArgs are passed to Command for per-month rows.
	MonthlyArgs []string `toml:"monthly_args"`
	// CacheMinutes is how long cost-tool output is reused before re-running it.
	CacheMinutes int `toml:"cache_minutes"`
	// WriteMode selects the cache-write rate: "5m" or "1h".
	WriteMode string `toml:"write_mode"`
	// PricingFile overrides the pricing table location.
	PricingFile string `toml:"pricing_file,omitempty"`
	// PricingURL is the page scraped when the pricing table is refreshed.
	PricingURL string `toml:"pricing_url"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultUsageEndpoint is the OAuth usage-limits endpoint.
const DefaultUsageEndpoint = "https://api.anthropic.com/api/oauth/usage"

// DefaultPricingURL is the page the pricing table is refreshed from.
const DefaultPricingURL = "https://docs.anthropic.com/en/docs/about-claude/pricing"

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Keepalive: KeepaliveConfig{
			IntervalMinutes:       5,
			ActiveMinutes:         15,
			HelloDelaySeconds:     3,
			HelloText:             "hi",
			CooldownMinutes:       60,
			ReauthCooldownMinutes: 60,
			StaleMinutes:          360,
			PauseMinutes:          30,
		},
		Scan: ScanConfig{
			Depth:     6,
			ReadBytes: 64 << 10,
			Dirs:      []string{},
		},
		Companion: CompanionConfig{
			Command:   "claude",
			Args:      []string{},
			ExtraPath: []string{"/opt/homebrew/bin", "/usr/local/bin", "~/.local/bin", "~/.claude/local"},
			AppName:   "Claude",
		},
		Limits: LimitsConfig{
			Endpoint:        DefaultUsageEndpoint,
			TimeoutSeconds:  10,
			CredentialsFile: "~/" + paths.ClaudeCredentialsRel,
			KeychainService: "Claude Code-credentials",
			LegacyCaches:    []string{"~/.claude/usage-limits-cache.json", "/tmp/claude-usage-cache.json"},
		},
		Cost: CostConfig{
			Command:      "ccusage",
			DailyArgs:    []string{"daily", "--json"},
			MonthlyArgs:  []string{"monthly", "--json"},
			CacheMinutes: 30,
			WriteMode:    "5m",
			PricingURL:   DefaultPricingURL,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 5,
		},
	}
}

// ExampleConfig returns a Config suitable for generating config.default.toml.
// For this project all defaults are good examples.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if _, err := toml.Decode(string(data), &v); err != nil || v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads dataDir/config.toml over the defaults, then applies environment
// overrides from getenv (pass os.Getenv in production) and validates the
// result. A missing file yields the defaults.
func Load(dataDir string, getenv func(string) string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		version := PeekVersion(data)
		migrated := migrate.Config.NeedsMigration(version)
		if migrated {
			if backupErr := os.WriteFile(path+".bak", data, 0o644); backupErr != nil {
				slog.Warn("failed to write config backup", "error", backupErr)
			}
			if data, err = migrate.Config.Upgrade(data, version); err != nil {
				return nil, fmt.Errorf("migrate config: %w", err)
			}
		}
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		for _, key := range md.Undecoded() {
			slog.Warn("unknown config key ignored", "key", key.String())
		}
		cfg.Version = migrate.Config.CurrentVersion
		if migrated {
			if err := cfg.Save(path); err != nil {
				slog.Warn("failed to save migrated config", "error", err)
			}
		}
	}

	if getenv != nil {
		if err := cfg.ApplyEnv(getenv); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Environment Overrides
// ///////////////////////////////////////////////

// Environment variable names recognised by [Config.ApplyEnv].
const (
	EnvClaudeCmd        = "KEEPWARM_CLAUDE_CMD"
	EnvClaudeArgs       = "KEEPWARM_CLAUDE_ARGS"
	EnvScanDirs         = "KEEPWARM_SCAN_DIRS"
	EnvPricingPath      = "KEEPWARM_PRICING_PATH"
	EnvCostCmd          = "KEEPWARM_COST_CMD"
	EnvCostArgs         = "KEEPWARM_COST_ARGS"
	EnvCostCacheMinutes = "KEEPWARM_COST_CACHE_MINUTES"
	EnvCacheWriteMode   = "KEEPWARM_CACHE_WRITE_MODE"
)

// ApplyEnv overlays KEEPWARM_* variables. Argument lists are split on
// whitespace and directory lists on the OS path-list separator.
// KEEPWARM_COST_ARGS replaces the daily arguments; the monthly run reuses
// them with "daily" swapped for "monthly".
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvClaudeCmd)); v != "" {
		c.Companion.Command = v
	}
	if v := getenv(EnvClaudeArgs); strings.TrimSpace(v) != "" {
		c.Companion.Args = strings.Fields(v)
	}
	if v := getenv(EnvScanDirs); strings.TrimSpace(v) != "" {
		for _, d := range filepath.SplitList(v) {
			if d = strings.TrimSpace(d); d != "" {
				c.Scan.Dirs = append(c.Scan.Dirs, d)
			}
		}
	}
	if v := strings.TrimSpace(getenv(EnvPricingPath)); v != "" {
		c.Cost.PricingFile = v
	}
	if v := strings.TrimSpace(getenv(EnvCostCmd)); v != "" {
		// "none" disables the tool.
		if v == "none" {
			v = ""
		}
		c.Cost.Command = v
	}
	if v := getenv(EnvCostArgs); strings.TrimSpace(v) != "" {
		c.Cost.DailyArgs = strings.Fields(v)
		c.Cost.MonthlyArgs = swapArg(c.Cost.DailyArgs, "daily", "monthly")
	}
	if v := strings.TrimSpace(getenv(EnvCostCacheMinutes)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCostCacheMinutes, err)
		}
		c.Cost.CacheMinutes = n
	}
	if v := strings.TrimSpace(getenv(EnvCacheWriteMode)); v != "" {
		c.Cost.WriteMode = v
	}
	return nil
}

func swapArg(args []string, from, to string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == from {
			a = to
		}
		out[i] = a
	}
	return out
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Keepalive.IntervalMinutes <= 0 {
		return fmt.Errorf("keepalive.interval_minutes must be > 0, got %d", c.Keepalive.IntervalMinutes)
	}
	nonNegative := []struct {
		key string
		val int
	}{
		{"keepalive.active_minutes", c.Keepalive.ActiveMinutes},
		{"keepalive.hello_delay_seconds", c.Keepalive.HelloDelaySeconds},
		{"keepalive.cooldown_minutes", c.Keepalive.CooldownMinutes},
		{"keepalive.reauth_cooldown_minutes", c.Keepalive.ReauthCooldownMinutes},
		{"keepalive.stale_minutes", c.Keepalive.StaleMinutes},
		{"keepalive.pause_minutes", c.Keepalive.PauseMinutes},
		{"scan.depth", c.Scan.Depth},
		{"cost.cache_minutes", c.Cost.CacheMinutes},
	}
	for _, f := range nonNegative {
		if f.val < 0 {
			return fmt.Errorf("%s must be >= 0, got %d", f.key, f.val)
		}
	}
	if c.Scan.ReadBytes <= 0 {
		return fmt.Errorf("scan.read_bytes must be > 0, got %d", c.Scan.ReadBytes)
	}
	if strings.TrimSpace(c.Companion.Command) == "" {
		return fmt.Errorf("companion.command must not be empty")
	}
	if c.Limits.TimeoutSeconds <= 0 {
		return fmt.Errorf("limits.timeout_seconds must be > 0, got %d", c.Limits.TimeoutSeconds)
	}
	if !strings.HasPrefix(c.Limits.Endpoint, "http://") && !strings.HasPrefix(c.Limits.Endpoint, "https://") {
		return fmt.Errorf("invalid limits.endpoint %q: must be an http(s) URL", c.Limits.Endpoint)
	}
	switch c.Cost.WriteMode {
	case "5m", "1h":
	default:
		return fmt.Errorf("invalid cost.write_mode %q: must be 5m or 1h", c.Cost.WriteMode)
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	return nil
}

// ///////////////////////////////////////////////
// Resolved Paths
// ///////////////////////////////////////////////

// ScanDirs returns the base directories searched for transcripts: the Claude
// defaults followed by configured extras, home-expanded and de-duplicated.
func (c *Config) ScanDirs() []string {
	dirs := []string{paths.InHome(paths.ClaudeDirRel), paths.InHome(paths.ClaudeConfigDirRel)}
	for _, d := range c.Scan.Dirs {
		dirs = append(dirs, paths.ExpandHome(d))
	}
	seen := make(map[string]bool, len(dirs))
	out := dirs[:0]
	for _, d := range dirs {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// PricingPath returns the pricing table location.
func (c *Config) PricingPath(data paths.DataDir) string {
	if c.Cost.PricingFile != "" {
		return paths.ExpandHome(c.Cost.PricingFile)
	}
	return data.Pricing()
}

// LegacyCachePaths returns the home-expanded legacy limits cache files.
func (c *Config) LegacyCachePaths() []string {
	out := make([]string, 0, len(c.Limits.LegacyCaches))
	for _, p := range c.Limits.LegacyCaches {
		out = append(out, paths.ExpandHome(p))
	}
	return out
}

// CompanionPath returns the home-expanded extra PATH entries.
func (c *Config) CompanionPath() []string {
	out := make([]string, 0, len(c.Companion.ExtraPath))
	for _, p := range c.Companion.ExtraPath {
		out = append(out, paths.ExpandHome(p))
	}
	return out
}
