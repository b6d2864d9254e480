// write_test.go tests [Write] for correctness and temp-file cleanup, and the
// [WriteJSON] / [ReadJSON] helpers used for the daemon's state files.

package atomicfile

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestWriteBasic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")

	if err := Write(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestWrite_OverwriteExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overwrite.txt")

	for _, content := range []string{"original", "updated"} {
		if err := Write(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Write(%q) failed: %v", content, err)
		}
	}
	got, _ := os.ReadFile(path)
	if string(got) != "updated" {
		t.Errorf("content = %q, want %q", got, "updated")
	}
}

func TestWrite_RestrictivePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	path := filepath.Join(t.TempDir(), "state.json")

	if err := Write(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("permissions = %o, want 600", got)
	}
}

func TestWriteCleanupOnFailure(t *testing.T) {
	parent := t.TempDir()
	badPath := filepath.Join(parent, "no-such-dir", "file.txt")

	if err := Write(badPath, []byte("data"), 0o644); err == nil {
		t.Fatal("expected error writing to non-existent directory")
	}
	entries, _ := os.ReadDir(parent)
	for _, e := range entries {
		if matched, _ := filepath.Match("*.tmp.*", e.Name()); matched {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

// ///////////////////////////////////////////////
// JSON Helpers
// ///////////////////////////////////////////////

type sample struct {
	LastLaunch int64   `json:"lastLaunch"`
	History    []int64 `json:"history"`
}

func TestWriteJSONCreatesParentAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	in := sample{LastLaunch: 1700000000000, History: []int64{1, 2, 3}}

	if err := WriteJSON(path, in, 0o600); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var out sample
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if out.LastLaunch != in.LastLaunch || len(out.History) != 3 {
		t.Errorf("ReadJSON = %+v, want %+v", out, in)
	}
}

func TestReadJSONMissingFile(t *testing.T) {
	var out sample
	err := ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &out)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ReadJSON error = %v, want os.ErrNotExist", err)
	}
}

func TestReadJSONMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json"), 0o644)

	var out sample
	err := ReadJSON(path, &out)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if errors.Is(err, os.ErrNotExist) {
		t.Errorf("malformed file reported as missing: %v", err)
	}
}
