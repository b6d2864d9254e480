// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile          = "daemon.pid"
	StateFile        = "state.json"
	ConfigFile       = "config.toml"
	LogFile          = "keepwarm.log"
	LimitsCacheFile  = "limits-cache.json"
	UsageHistoryFile = "usage-history.json"
	PricingFile      = "pricing.json"
)

const (
	BinaryName = "keepwarm"
	DataDirRel = ".keepwarm" // relative to $HOME
)

// Claude Code locations, relative to $HOME.
const (
	ClaudeDirRel         = ".claude"
	ClaudeConfigDirRel   = ".config/claude"
	ClaudeCredentialsRel = ".claude/.credentials.json"
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// State returns the full path to the keepalive state file.
func (d DataDir) State() string { return filepath.Join(d.Root, StateFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// LimitsCache returns the full path to the usage-limits cache file.
func (d DataDir) LimitsCache() string { return filepath.Join(d.Root, LimitsCacheFile) }

// UsageHistory returns the full path to the daily/monthly cost history file.
func (d DataDir) UsageHistory() string { return filepath.Join(d.Root, UsageHistoryFile) }

// Pricing returns the full path to the default pricing table.
func (d DataDir) Pricing() string { return filepath.Join(d.Root, PricingFile) }

// ///////////////////////////////////////////////
// Home Expansion
// ///////////////////////////////////////////////

// ExpandHome replaces a leading "~" with the user's home directory. Paths
// without the prefix, and paths where the home directory is unknown, are
// returned unchanged.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// InHome joins rel onto the user's home directory, or returns "" when the
// home directory cannot be determined.
func InHome(rel string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, rel)
}
