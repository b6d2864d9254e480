// Tests for the config package covering [Load] behavior (defaults, overrides,
// missing files, malformed input, migration), environment overrides
// ([Config.ApplyEnv]), validation ([Config.Validate]), serialization
// round-trips ([Config.Save]), the embedded default file, and [ConfigDocs]
// completeness.

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	keepwarm "tools.zach/dev/keepwarm"
	"tools.zach/dev/keepwarm/internal/paths"
)

// ///////////////////////////////////////////////
// Load
// ///////////////////////////////////////////////

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		noFile  bool
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:   "defaults from minimal config",
			config: "version = 1\n",
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				def := DefaultConfig()
				if cfg.Keepalive != def.Keepalive {
					t.Errorf("Keepalive = %+v, want %+v", cfg.Keepalive, def.Keepalive)
				}
				if cfg.Cost.Command != def.Cost.Command {
					t.Errorf("Cost.Command = %q, want %q", cfg.Cost.Command, def.Cost.Command)
				}
			},
		},
		{
			name: "user overrides applied",
			config: `
version = 1

[keepalive]
interval_minutes = 10
cooldown_minutes = 11

[companion]
command = "/usr/local/bin/claude"
`,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Keepalive.IntervalMinutes != 10 {
					t.Errorf("IntervalMinutes = %d, want 10", cfg.Keepalive.IntervalMinutes)
				}
				if cfg.Keepalive.CooldownMinutes != 11 {
					t.Errorf("CooldownMinutes = %d, want 11", cfg.Keepalive.CooldownMinutes)
				}
				if cfg.Companion.Command != "/usr/local/bin/claude" {
					t.Errorf("Command = %q", cfg.Companion.Command)
				}
				if cfg.Keepalive.ActiveMinutes != DefaultConfig().Keepalive.ActiveMinutes {
					t.Errorf("ActiveMinutes = %d, want default", cfg.Keepalive.ActiveMinutes)
				}
			},
		},
		{
			name:   "missing file returns defaults",
			noFile: true,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				if !reflect.DeepEqual(cfg, DefaultConfig()) {
					t.Errorf("Load() = %+v, want defaults", cfg)
				}
			},
		},
		{
			name:    "malformed TOML returns error",
			config:  "this is not valid toml [[[",
			wantErr: true,
		},
		{
			name:    "invalid value fails validation",
			config:  "[keepalive]\ninterval_minutes = 0\n",
			wantErr: true,
		},
		{
			name:   "env overrides file",
			config: "[companion]\ncommand = \"from-file\"\n",
			env:    map[string]string{EnvClaudeCmd: "from-env"},
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Companion.Command != "from-env" {
					t.Errorf("Command = %q, want from-env", cfg.Companion.Command)
				}
			},
		},
		{
			name:    "bad env integer returns error",
			noFile:  true,
			env:     map[string]string{EnvCostCacheMinutes: "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if !tt.noFile {
				writeConfig(t, dir, tt.config)
			}

			cfg, err := Load(dir, envFunc(tt.env))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad_UnversionedFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[scan]\ndepth = 2\n")

	cfg, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Scan.Depth != 2 {
		t.Errorf("Depth = %d, want 2", cfg.Scan.Depth)
	}
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

func TestPeekVersion(t *testing.T) {
	tests := []struct {
		name string
		data string
		want int
	}{
		{"reads version from TOML", "version = 3\n[scan]\ndepth = 1\n", 3},
		{"missing version returns 1", "[scan]\ndepth = 1\n", 1},
		{"garbage returns 1", "[[[", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PeekVersion([]byte(tt.data)); got != tt.want {
				t.Errorf("PeekVersion() = %d, want %d", got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// ApplyEnv
// ///////////////////////////////////////////////

func TestConfig_ApplyEnv(t *testing.T) {
	sep := string(os.PathListSeparator)
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(envFunc(map[string]string{
		EnvClaudeCmd:        "claude-beta",
		EnvClaudeArgs:       "  --model   sonnet ",
		EnvScanDirs:         "/a" + sep + " " + sep + "/b",
		EnvPricingPath:      "/tmp/p.json",
		EnvCostArgs:         "daily --json --offline",
		EnvCostCacheMinutes: "7",
		EnvCacheWriteMode:   "1h",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.Companion.Command != "claude-beta" {
		t.Errorf("Command = %q", cfg.Companion.Command)
	}
	if !slices.Equal(cfg.Companion.Args, []string{"--model", "sonnet"}) {
		t.Errorf("Args = %q", cfg.Companion.Args)
	}
	if !slices.Equal(cfg.Scan.Dirs, []string{"/a", "/b"}) {
		t.Errorf("Dirs = %q", cfg.Scan.Dirs)
	}
	if cfg.Cost.PricingFile != "/tmp/p.json" {
		t.Errorf("PricingFile = %q", cfg.Cost.PricingFile)
	}
	if !slices.Equal(cfg.Cost.DailyArgs, []string{"daily", "--json", "--offline"}) {
		t.Errorf("DailyArgs = %q", cfg.Cost.DailyArgs)
	}
	if !slices.Equal(cfg.Cost.MonthlyArgs, []string{"monthly", "--json", "--offline"}) {
		t.Errorf("MonthlyArgs = %q", cfg.Cost.MonthlyArgs)
	}
	if cfg.Cost.CacheMinutes != 7 {
		t.Errorf("CacheMinutes = %d", cfg.Cost.CacheMinutes)
	}
	if cfg.Cost.WriteMode != "1h" {
		t.Errorf("WriteMode = %q", cfg.Cost.WriteMode)
	}
}

func TestConfig_ApplyEnv_DisableCostTool(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(envFunc(map[string]string{EnvCostCmd: "none"})); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Cost.Command != "" {
		t.Errorf("Command = %q, want empty", cfg.Cost.Command)
	}
}

func TestConfig_ApplyEnv_EmptyLeavesDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(envFunc(nil)); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("ApplyEnv with empty env changed config: %+v", cfg)
	}
}

// ///////////////////////////////////////////////
// Validate
// ///////////////////////////////////////////////

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(cfg *Config)
		wantErr bool
	}{
		{"default config passes", func(cfg *Config) {}, false},
		{"zero active minutes allowed", func(cfg *Config) { cfg.Keepalive.ActiveMinutes = 0 }, false},
		{"zero depth allowed", func(cfg *Config) { cfg.Scan.Depth = 0 }, false},
		{"write mode 1h", func(cfg *Config) { cfg.Cost.WriteMode = "1h" }, false},
		{"zero interval", func(cfg *Config) { cfg.Keepalive.IntervalMinutes = 0 }, true},
		{"negative cooldown", func(cfg *Config) { cfg.Keepalive.CooldownMinutes = -1 }, true},
		{"negative depth", func(cfg *Config) { cfg.Scan.Depth = -1 }, true},
		{"zero read bytes", func(cfg *Config) { cfg.Scan.ReadBytes = 0 }, true},
		{"empty command", func(cfg *Config) { cfg.Companion.Command = " " }, true},
		{"zero timeout", func(cfg *Config) { cfg.Limits.TimeoutSeconds = 0 }, true},
		{"non-http endpoint", func(cfg *Config) { cfg.Limits.Endpoint = "ftp://x" }, true},
		{"invalid write mode", func(cfg *Config) { cfg.Cost.WriteMode = "10m" }, true},
		{"invalid log.level", func(cfg *Config) { cfg.Log.Level = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.setup(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Resolved Paths
// ///////////////////////////////////////////////

func TestConfig_ScanDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	cfg := DefaultConfig()
	cfg.Scan.Dirs = []string{"~/extra", "~/.claude", "/abs"}

	got := cfg.ScanDirs()
	want := []string{
		filepath.Join(home, ".claude"),
		filepath.Join(home, ".config", "claude"),
		filepath.Join(home, "extra"),
		"/abs",
	}
	if !slices.Equal(got, want) {
		t.Errorf("ScanDirs() = %q, want %q", got, want)
	}
}

func TestConfig_PricingPath(t *testing.T) {
	data := paths.DataDir{Root: "/data"}
	cfg := DefaultConfig()
	if got := cfg.PricingPath(data); got != data.Pricing() {
		t.Errorf("PricingPath() = %q, want %q", got, data.Pricing())
	}
	cfg.Cost.PricingFile = "/elsewhere/p.json"
	if got := cfg.PricingPath(data); got != "/elsewhere/p.json" {
		t.Errorf("PricingPath() = %q, want override", got)
	}
}

// ///////////////////////////////////////////////
// Serialization
// ///////////////////////////////////////////////

func TestConfig_Save_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	orig := DefaultConfig()
	orig.Keepalive.HelloText = "ping"
	orig.Scan.Transcript = "/tmp/t.jsonl"
	orig.Cost.DailyArgs = []string{"daily", "--json", "--offline"}

	if err := orig.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	loaded := DefaultConfig()
	if err := toml.Unmarshal(data, loaded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(loaded, orig) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, orig)
	}
}

func TestDefaultConfigTOML_MatchesDefaults(t *testing.T) {
	loaded := DefaultConfig()
	md, err := toml.Decode(string(keepwarm.DefaultConfigTOML), loaded)
	if err != nil {
		t.Fatalf("decode embedded config.default.toml: %v", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		t.Errorf("embedded config has unknown keys: %v", undecoded)
	}
	if !reflect.DeepEqual(loaded, DefaultConfig()) {
		t.Errorf("embedded config.default.toml is out of date; run go generate ./internal/config")
	}
}

func TestConfigMarshalFieldOrder(t *testing.T) {
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(DefaultConfig()); err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := buf.String()

	order := []string{"version", "[keepalive]", "[scan]", "[companion]", "[limits]", "[cost]", "[log]"}
	last := -1
	for _, s := range order {
		idx := strings.Index(out, s)
		if idx <= last {
			t.Fatalf("expected %q after previous sections in marshaled output", s)
		}
		last = idx
	}
}

// ///////////////////////////////////////////////
// ConfigDocs completeness
// ///////////////////////////////////////////////

func TestConfigDocsComplete(t *testing.T) {
	for _, field := range collectTOMLFields(reflect.TypeOf(Config{}), "") {
		if _, ok := ConfigDocs[field]; !ok {
			t.Errorf("ConfigDocs missing entry for field %q", field)
		}
	}
}

// collectTOMLFields walks a struct type and returns the dot-separated TOML
// key path for every tagged leaf field.
func collectTOMLFields(typ reflect.Type, prefix string) []string {
	var fields []string
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if tag == "" || tag == "-" {
			continue
		}
		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			fields = append(fields, collectTOMLFields(f.Type, path)...)
		} else {
			fields = append(fields, path)
		}
	}
	return fields
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// writeConfig writes a TOML config string to config.toml in dir.
func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	path := filepath.Join(dir, paths.ConfigFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
}

// envFunc adapts a map to the getenv signature Load expects.
func envFunc(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}
