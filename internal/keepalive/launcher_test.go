// Tests for the companion launcher: the Starting -> Ready -> Primed/Failed
// lifecycle against real child processes, PATH augmentation, and command
// resolution.
package keepalive

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}
}

func waitDone(t *testing.T, l *Launch) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("launch stuck in phase %v", l.Phase())
	}
}

// ///////////////////////////////////////////////
// Lifecycle Tests
// ///////////////////////////////////////////////

func TestLauncherPrimesCompanion(t *testing.T) {
	skipOnWindows(t)
	out := filepath.Join(t.TempDir(), "received.txt")

	l := &Launcher{
		Command:    "sh",
		Args:       []string{"-c", `cat > "$0"`, out},
		HelloText:  "hi",
		HelloDelay: 20 * time.Millisecond,
	}
	launch, err := l.Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if p := launch.Phase(); p != Ready && p != Primed {
		t.Errorf("Phase after Launch = %v, want ready", p)
	}
	if launch.PID() == 0 {
		t.Error("PID() = 0 after start")
	}

	waitDone(t, launch)
	if launch.Phase() != Primed || launch.Err() != nil {
		t.Fatalf("Phase = %v, Err = %v; want primed", launch.Phase(), launch.Err())
	}

	// cat exits once stdin is closed; poll until the file is flushed.
	deadline := time.Now().Add(5 * time.Second)
	for {
		data, _ := os.ReadFile(out)
		if string(data) == "hi\n" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("companion received %q, want %q", data, "hi\n")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestLauncherStartFailure(t *testing.T) {
	l := &Launcher{Command: "keepwarm-companion-that-does-not-exist"}
	launch, err := l.Launch(context.Background())
	if err == nil {
		t.Fatal("Launch() error = nil for missing command")
	}
	if launch.Phase() != Failed {
		t.Errorf("Phase = %v, want failed", launch.Phase())
	}
	select {
	case <-launch.Done():
	default:
		t.Error("Done() not closed after a start failure")
	}
}

func TestLauncherCancelledBeforePriming(t *testing.T) {
	skipOnWindows(t)
	ctx, cancel := context.WithCancel(context.Background())

	l := &Launcher{Command: "sh", Args: []string{"-c", "cat >/dev/null"}, HelloText: "hi", HelloDelay: time.Hour}
	launch, err := l.Launch(ctx)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	cancel()
	waitDone(t, launch)
	if launch.Phase() != Failed {
		t.Errorf("Phase = %v, want failed after cancellation", launch.Phase())
	}
}

func TestPhaseString(t *testing.T) {
	for p, want := range map[Phase]string{Starting: "starting", Ready: "ready", Primed: "primed", Failed: "failed", Phase(9): "phase(9)"} {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(p), got, want)
		}
	}
}

// ///////////////////////////////////////////////
// PATH Tests
// ///////////////////////////////////////////////

func TestWithPath(t *testing.T) {
	sep := string(os.PathListSeparator)
	tests := []struct {
		name  string
		env   []string
		extra []string
		want  string
	}{
		{"prepends", []string{"HOME=/h", "PATH=/usr/bin"}, []string{"/opt/homebrew/bin", "/usr/local/bin"}, "/opt/homebrew/bin" + sep + "/usr/local/bin" + sep + "/usr/bin"},
		{"skips present", []string{"PATH=/usr/local/bin" + sep + "/usr/bin"}, []string{"/usr/local/bin"}, "/usr/local/bin" + sep + "/usr/bin"},
		{"dedupes extra", []string{"PATH=/usr/bin"}, []string{"/a", "/a", ""}, "/a" + sep + "/usr/bin"},
		{"no PATH", []string{"HOME=/h"}, []string{"/a"}, "/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := withPath(tt.env, tt.extra)
			if p := pathFrom(got); p != tt.want {
				t.Errorf("PATH = %q, want %q", p, tt.want)
			}
			if !slices.Contains(got, "HOME=/h") && slices.Contains(tt.env, "HOME=/h") {
				t.Error("other variables dropped")
			}
		})
	}
}

func TestWithPathDoesNotMutateInput(t *testing.T) {
	env := []string{"PATH=/usr/bin"}
	withPath(env, []string{"/x"})
	if env[0] != "PATH=/usr/bin" {
		t.Errorf("input mutated: %v", env)
	}
}

func TestResolveUsesAugmentedPath(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := filepath.Join(dir, "fake-claude")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := resolve("fake-claude", dir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != bin {
		t.Errorf("resolve() = %q, want %q", got, bin)
	}

	if _, err := resolve("", dir); err == nil {
		t.Error("resolve(\"\") error = nil")
	}
	if got, _ := resolve("/abs/claude", ""); got != "/abs/claude" {
		t.Errorf("absolute command rewritten to %q", got)
	}
}

func TestLauncherFindsCommandInExtraPath(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "ran")
	script := "#!/bin/sh\ncat > " + out + "\n"
	if err := os.WriteFile(filepath.Join(dir, "fake-claude"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	l := &Launcher{
		Command:   "fake-claude",
		ExtraPath: []string{dir},
		HelloText: "hello\n",
		environ:   func() []string { return []string{"PATH=/usr/bin:/bin"} },
	}
	launch, err := l.Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	waitDone(t, launch)

	deadline := time.Now().Add(5 * time.Second)
	for {
		data, _ := os.ReadFile(out)
		if strings.TrimSpace(string(data)) == "hello" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("companion output = %q", data)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
