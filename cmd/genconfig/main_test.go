package main

import (
	"reflect"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/keepwarm/internal/config"
)

// ///////////////////////////////////////////////
// render Tests
// ///////////////////////////////////////////////

func TestRender_DecodesToExampleConfig(t *testing.T) {
	text, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	got := config.DefaultConfig()
	if _, err := toml.Decode(text, got); err != nil {
		t.Fatalf("rendered config does not parse: %v\n%s", err, text)
	}
	if !reflect.DeepEqual(got, config.ExampleConfig()) {
		t.Errorf("rendered config decodes to %+v, want ExampleConfig", got)
	}
}

func TestRender_Annotations(t *testing.T) {
	type section struct {
		Shown  string `toml:"shown"`
		Hidden string `toml:"hidden,omitempty"`
	}
	type cfg struct {
		Version int     `toml:"version"`
		Things  section `toml:"things"`
	}
	docs := map[string]config.FieldDoc{
		"version":       {Comment: "schema"},
		"things":        {Comment: "all the things"},
		"things.shown":  {Comment: "line one\nline two", Alternatives: []string{`shown = "b"`}},
		"things.hidden": {Comment: "only when set", Alternatives: []string{`# hidden = "x"`}},
	}

	text, err := render(cfg{Version: 1, Things: section{Shown: "a"}}, docs)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	want := strings.Join([]string{
		"# schema",
		"version = 1",
		"",
		"# ///// Things /////",
		"",
		"# all the things",
		"[things]",
		"# line one",
		"# line two",
		`shown = "a"`,
		`# shown = "b"`,
		"",
		"# only when set",
		`# # hidden = "x"`,
	}, "\n") + "\n"
	if !strings.HasSuffix(text, want) {
		t.Errorf("render() =\n%s\nwant suffix\n%s", text, want)
	}
	if !strings.HasPrefix(text, "# ////") {
		t.Errorf("render() missing banner:\n%s", text)
	}
}

// ///////////////////////////////////////////////
// Helper Tests
// ///////////////////////////////////////////////

func TestSectionTitle(t *testing.T) {
	tests := []struct {
		section string
		want    string
	}{
		{"keepalive", "Keepalive"},
		{"cost.pricing", "Pricing"},
		{"Log", "Log"},
		{"a", "A"},
		{"trailing.", ""},
	}
	for _, tt := range tests {
		t.Run(tt.section, func(t *testing.T) {
			if got := sectionTitle(tt.section); got != tt.want {
				t.Errorf("sectionTitle(%q) = %q, want %q", tt.section, got, tt.want)
			}
		})
	}
}

func TestIsChild(t *testing.T) {
	tests := []struct {
		section, path string
		want          bool
	}{
		{"cost", "cost.command", true},
		{"cost", "cost", false},
		{"cost", "cost.pricing.url", false},
		{"cost", "costly.command", false},
		{"scan", "cost.command", false},
	}
	for _, tt := range tests {
		if got := isChild(tt.section, tt.path); got != tt.want {
			t.Errorf("isChild(%q, %q) = %v, want %v", tt.section, tt.path, got, tt.want)
		}
	}
}
