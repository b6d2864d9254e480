// Package main implements the genconfig tool that writes config.default.toml
// from config.ExampleConfig(), annotated with config.ConfigDocs.
//
// It is invoked by go generate via the directive in internal/config/config.go.
package main

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/keepwarm/internal/config"
)

// go generate runs from internal/config/, so the repo root (where
// configdata.go embeds the file) is two levels up.
const outPath = "../../config.default.toml"

func main() {
	text, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "genconfig: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outPath, []byte(text), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Println("wrote config.default.toml")
}

// ///////////////////////////////////////////////
// Rendering
// ///////////////////////////////////////////////

// annotator rewrites encoder output into the commented example file.
type annotator struct {
	docs    map[string]config.FieldDoc
	out     []string
	section string
	emitted map[string]bool
}

// render encodes cfg as TOML and decorates it: a banner per table, the doc
// comment above every documented key, alternatives as commented lines below
// it, and commented entries for documented keys the encoder omitted.
func render(cfg any, docs map[string]config.FieldDoc) (string, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	a := &annotator{docs: docs, emitted: map[string]bool{}}
	a.out = append(a.out,
		"# ///////////////////////////////////////////////",
		"# keepwarm Configuration",
		"# ///////////////////////////////////////////////",
		"",
	)
	for _, line := range strings.Split(raw.String(), "\n") {
		a.line(strings.TrimSpace(line))
	}
	a.flushOmitted()

	return strings.TrimRight(strings.Join(a.out, "\n"), "\n") + "\n", nil
}

func (a *annotator) line(l string) {
	switch {
	case l == "":
	case strings.HasPrefix(l, "[") && !strings.HasPrefix(l, "[["):
		a.flushOmitted()
		a.section = strings.Trim(l, "[] ")
		a.out = append(a.out, "", "# ///// "+sectionTitle(a.section)+" /////", "")
		a.comment(a.docs[a.section].Comment)
		a.out = append(a.out, l)
	case strings.HasPrefix(l, "#") || !strings.Contains(l, "="):
		a.out = append(a.out, l)
	default:
		key := strings.TrimSpace(strings.SplitN(l, "=", 2)[0])
		path := joinPath(a.section, key)
		a.emitted[path] = true
		doc := a.docs[path]
		a.comment(doc.Comment)
		a.out = append(a.out, l)
		for _, alt := range doc.Alternatives {
			a.out = append(a.out, "# "+alt)
		}
	}
}

func (a *annotator) comment(text string) {
	if text == "" {
		return
	}
	for _, cl := range strings.Split(text, "\n") {
		a.out = append(a.out, "# "+cl)
	}
}

// flushOmitted emits commented entries for documented direct children of the
// current section that the encoder skipped (omitempty zero values), sorted.
func (a *annotator) flushOmitted() {
	if a.section == "" {
		return
	}
	var missing []string
	for path := range a.docs {
		if a.emitted[path] || !isChild(a.section, path) {
			continue
		}
		missing = append(missing, path)
	}
	slices.Sort(missing)
	for _, path := range missing {
		doc := a.docs[path]
		a.out = append(a.out, "")
		a.comment(doc.Comment)
		for _, alt := range doc.Alternatives {
			a.out = append(a.out, "# "+alt)
		}
		a.emitted[path] = true
	}
}

// isChild reports whether path names a key directly inside section.
func isChild(section, path string) bool {
	rest, ok := strings.CutPrefix(path, section+".")
	return ok && rest != "" && !strings.Contains(rest, ".")
}

func joinPath(section, key string) string {
	if section == "" {
		return key
	}
	return section + "." + key
}

// sectionTitle turns the last segment of a dotted table name into a title:
// "cost" becomes "Cost".
func sectionTitle(section string) string {
	last := section[strings.LastIndex(section, ".")+1:]
	if last == "" {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
