// Package transcript finds Claude Code transcript files and reads
// last-activity timestamps from them without loading whole files.
package transcript

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ///////////////////////////////////////////////
// Matching Rules
// ///////////////////////////////////////////////

// DefaultPatterns are the doublestar globs a transcript path must match,
// evaluated against the file's absolute slash path without its volume or
// leading separator, so every segment above the base takes part.
var DefaultPatterns = []string{
	"**/projects/**/*.jsonl",
	"**/*{transcript,session,conversation}*.jsonl",
	"**/history.jsonl",
}

// DefaultSkipDirs are directory names never descended into.
var DefaultSkipDirs = []string{
	".git", ".hg", ".svn", "node_modules", "vendor", "dist", "build",
	"target", ".next", ".cache", "__pycache__", ".venv",
}

// ///////////////////////////////////////////////
// Locator
// ///////////////////////////////////////////////

// Locator walks base directories looking for transcript files.
// The zero value uses [DefaultPatterns] and [DefaultSkipDirs].
type Locator struct {
	Patterns []string
	SkipDirs []string
}

// Candidate is a matched transcript file.
type Candidate struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Find returns the matching file with the greatest modification time across
// dirs, searching at most depth directory levels below each base. Equal
// modification times keep the file found first; bases are walked in order
// and entries in name order, so the result is deterministic.
func (l Locator) Find(dirs []string, depth int) (string, bool) {
	var best Candidate
	l.Walk(dirs, depth, func(c Candidate) {
		if best.Path == "" || c.ModTime.After(best.ModTime) {
			best = c
		}
	})
	return best.Path, best.Path != ""
}

// Walk calls fn for every matching file below dirs. Missing or unreadable
// directories are skipped silently. depth 0 visits only the files directly
// inside each base.
func (l Locator) Walk(dirs []string, depth int, fn func(Candidate)) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		dir = filepath.Clean(dir)
		l.walk(dir, matchRoot(dir), depth, fn)
	}
}

// matchRoot is the slash form of dir that patterns are matched against.
func matchRoot(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	dir = strings.TrimPrefix(dir, filepath.VolumeName(dir))
	return strings.Trim(filepath.ToSlash(dir), "/")
}

func (l Locator) walk(dir, rel string, depth int, fn func(Candidate)) {
	if depth < 0 {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		full := filepath.Join(dir, name)
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}

		info, ok := stat(e, full)
		if !ok {
			continue
		}
		if info.IsDir() {
			if !l.skipped(name) {
				l.walk(full, childRel, depth-1, fn)
			}
			continue
		}
		if info.Mode().IsRegular() && l.matches(childRel) {
			fn(Candidate{Path: full, ModTime: info.ModTime(), Size: info.Size()})
		}
	}
}

// stat resolves symlinks so linked transcript folders are followed.
func stat(e fs.DirEntry, full string) (fs.FileInfo, bool) {
	if e.Type()&fs.ModeSymlink != 0 {
		info, err := os.Stat(full)
		return info, err == nil
	}
	info, err := e.Info()
	return info, err == nil
}

func (l Locator) matches(rel string) bool {
	patterns := l.Patterns
	if patterns == nil {
		patterns = DefaultPatterns
	}
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (l Locator) skipped(name string) bool {
	skip := l.SkipDirs
	if skip == nil {
		skip = DefaultSkipDirs
	}
	for _, s := range skip {
		if s == name {
			return true
		}
	}
	return false
}
