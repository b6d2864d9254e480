package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "keepalive.cooldown_minutes")
// to their [FieldDoc] entries. Section keys ("keepalive") document the table header.
var ConfigDocs = map[string]FieldDoc{
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// Keepalive
	"keepalive": {
		Comment: "Keepalive decision loop. Every flag of `keepwarm run` overrides the matching key.",
	},
	"keepalive.interval_minutes": {
		Comment: "Minutes between daemon ticks. Writes to state.json also trigger a tick.",
	},
	"keepalive.active_minutes": {
		Comment: "Skip the launch when the transcript saw activity within this many minutes.\n0 disables the activity check.",
	},
	"keepalive.hello_delay_seconds": {
		Comment: "Seconds to wait after starting the CLI before sending the priming line.",
	},
	"keepalive.hello_text": {
		Comment: "Priming line written to the CLI's stdin.",
	},
	"keepalive.cooldown_minutes": {
		Comment: "Minimum minutes between two launches. --force does not bypass this.",
	},
	"keepalive.reauth_cooldown_minutes": {
		Comment: "Minimum minutes between two re-auth app opens after an expired token.",
	},
	"keepalive.stale_minutes": {
		Comment: "Cached limits older than this are stale and block launches unless --force.",
	},
	"keepalive.pause_minutes": {
		Comment: "Pause length used by the menu-bar \"Pause\" action.",
		Alternatives: []string{
			`pause_minutes = 120`,
		},
	},

	// Scan
	"scan": {
		Comment: "Transcript discovery.",
	},
	"scan.depth": {
		Comment: "Directory levels searched below each base directory. 0 = only the base directory.",
	},
	"scan.read_bytes": {
		Comment: "Bytes read from the start and the end of a transcript when looking for timestamps.",
	},
	"scan.dirs": {
		Comment: "Extra base directories, searched after ~/.claude and ~/.config/claude.\nKEEPWARM_SCAN_DIRS appends more (OS path-list separated).",
		Alternatives: []string{
			`# dirs = ["~/work/claude-transcripts"]`,
		},
	},
	"scan.transcript": {
		Comment: "Pin one transcript file and skip discovery.",
		Alternatives: []string{
			`# transcript = "~/.claude/projects/my-project/session.jsonl"`,
		},
	},

	// Companion
	"companion": {
		Comment: "The CLI launched to keep the session warm, and the app opened for re-auth.",
	},
	"companion.command": {
		Comment: "Executable name or path. KEEPWARM_CLAUDE_CMD overrides.",
	},
	"companion.args": {
		Comment: "Arguments passed to the command. KEEPWARM_CLAUDE_ARGS overrides (whitespace separated).",
	},
	"companion.extra_path": {
		Comment: "Prepended to PATH for the child, so the CLI is found when launched by a menu-bar app.",
	},
	"companion.app_name": {
		Comment: "macOS application opened when the OAuth token has expired.",
	},

	// Limits
	"limits": {
		Comment: "Usage-limits endpoint and caches.",
	},
	"limits.endpoint": {
		Comment: "OAuth usage endpoint.",
	},
	"limits.timeout_seconds": {
		Comment: "Overall request timeout in seconds, retries included.",
	},
	"limits.credentials_file": {
		Comment: "OAuth credentials file, read when the macOS keychain has no entry.",
	},
	"limits.keychain_service": {
		Comment: "macOS keychain service name holding the OAuth credentials.",
	},
	"limits.legacy_caches": {
		Comment: "Older limits caches consulted, in order, when limits-cache.json is missing.",
	},

	// Cost
	"cost": {
		Comment: "Cost aggregation and pricing.",
	},
	"cost.command": {
		Comment: "External cost tool. Empty disables it and costs come from the transcript scan.\nKEEPWARM_COST_CMD overrides (\"none\" disables).",
	},
	"cost.daily_args": {
		Comment: "Arguments producing per-day JSON rows. KEEPWARM_COST_ARGS overrides.",
	},
	"cost.monthly_args": {
		Comment: "Arguments producing per-month JSON rows.",
	},
	"cost.cache_minutes": {
		Comment: "Minutes the cost tool output is reused. KEEPWARM_COST_CACHE_MINUTES overrides.",
	},
	"cost.write_mode": {
		Comment: "Cache-write rate used for pricing. Options: \"5m\", \"1h\"\nKEEPWARM_CACHE_WRITE_MODE overrides.",
		Alternatives: []string{
			`write_mode = "1h"`,
		},
	},
	"cost.pricing_file": {
		Comment: "Pricing table location. Defaults to pricing.json in the data directory.\nKEEPWARM_PRICING_PATH overrides.",
		Alternatives: []string{
			`# pricing_file = "~/pricing.json"`,
		},
	},
	"cost.pricing_url": {
		Comment: "Page the pricing table is refreshed from when it is older than 30 days.",
	},

	// Log
	"log": {
		Comment: "Logging configuration",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
			`level = "warn"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
}
