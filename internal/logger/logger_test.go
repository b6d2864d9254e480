// Package logger tests verify the custom [Handler] output format, level
// filtering, attribute grouping, and the [ReadTail] / [LastMessage] utilities.
package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func logLine(buf *bytes.Buffer) string {
	return strings.TrimRight(buf.String(), "\r\n")
}

// ///////////////////////////////////////////////
// Handler Output Format
// ///////////////////////////////////////////////

func TestHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, LevelInfo)).Info("tick skipped", "reason", "paused")

	line := logLine(&buf)
	if !strings.Contains(line, "[INFO] tick skipped | reason=paused") {
		t.Errorf("unexpected format: %q", line)
	}
	if !strings.HasSuffix(strings.Split(line, " [")[0], "Z") {
		t.Errorf("expected UTC timestamp ending with Z, got %q", line)
	}
}

func TestHandler_NoAttrs(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, LevelInfo)).Info("no attrs")

	if strings.Contains(logLine(&buf), "|") {
		t.Errorf("expected no pipe separator without attrs, got %q", logLine(&buf))
	}
}

func TestHandler_MultipleAttrsAndDuration(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, LevelInfo)).Info("multi", "a", 1, "wait", 1500*time.Millisecond)

	if !strings.Contains(logLine(&buf), "a=1, wait=1.5s") {
		t.Errorf("expected comma-separated attrs, got %q", logLine(&buf))
	}
}

func TestHandler_GroupAttr(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, LevelInfo)).Info("limits",
		slog.Group("five_hour", "utilization", 42.5),
	)
	if !strings.Contains(logLine(&buf), "five_hour.utilization=42.5") {
		t.Errorf("expected flattened group attr, got %q", logLine(&buf))
	}
}

// ///////////////////////////////////////////////
// Levels
// ///////////////////////////////////////////////

func TestHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, LevelWarn))

	logger.Info("should be filtered")
	logger.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should be filtered") {
		t.Error("info message should have been filtered at warn level")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("warn message should appear at warn level")
	}
}

func TestHandler_DynamicLevel(t *testing.T) {
	var buf bytes.Buffer
	var lv slog.LevelVar
	lv.Set(LevelInfo)
	logger := slog.New(NewHandler(&buf, &lv))

	logger.Debug("hidden")
	lv.Set(LevelDebug)
	logger.Debug("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("LevelVar not honoured: %q", buf.String())
	}
}

func TestHandler_CustomLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, LevelTrace))

	Trace(logger, "trace msg")
	Fail(logger, "fail msg")

	if !strings.Contains(buf.String(), "[TRACE]") || !strings.Contains(buf.String(), "[FAIL]") {
		t.Errorf("expected TRACE and FAIL in output, got %q", buf.String())
	}
}

func TestLevelNames(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{LevelTrace, "TRACE"},
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LevelFail, "FAIL"},
		{-6, "DEBUG"},
	}
	for _, tt := range tests {
		if got := levelName(tt.level); got != tt.want {
			t.Errorf("levelName(%d) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"TRACE", LevelTrace},
		{" debug ", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"fail", LevelFail},
		{"unknown", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

// ///////////////////////////////////////////////
// WithAttrs / WithGroup
// ///////////////////////////////////////////////

func TestHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo).WithAttrs([]slog.Attr{slog.String("component", "keepalive")})
	slog.New(h).Info("test", "k", "v")

	if !strings.Contains(logLine(&buf), "component=keepalive, k=v") {
		t.Errorf("expected pre-applied attr first, got %q", logLine(&buf))
	}
}

func TestHandler_WithGroupNested(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo).WithGroup("limits").WithGroup("cache")
	slog.New(h).Info("nested", "age", "5m")

	if !strings.Contains(logLine(&buf), "limits.cache.age=5m") {
		t.Errorf("expected nested group prefix, got %q", logLine(&buf))
	}
}

func TestHandler_WithGroupEmpty(t *testing.T) {
	h := NewHandler(&bytes.Buffer{}, LevelInfo)
	if h.WithGroup("") != h {
		t.Error("WithGroup with empty string should return same handler")
	}
}

func TestHandler_WithAttrsSharedMutex(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo)
	h2 := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).(*Handler)
	if h.mu != h2.mu {
		t.Fatal("WithAttrs should share the same mutex pointer")
	}

	l1, l2 := slog.New(h), slog.New(h2)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() { defer wg.Done(); l1.Info("one") }()
		go func() { defer wg.Done(); l2.Info("two") }()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\r\n"), "\n")
	if len(lines) != 100 {
		t.Errorf("expected 100 log lines, got %d", len(lines))
	}
}

// ///////////////////////////////////////////////
// ReadTail / LastMessage
// ///////////////////////////////////////////////

func TestReadTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	os.WriteFile(path, []byte("line1\nline2\n\nline3\nline4\nline5\n"), 0o644)

	result, err := ReadTail(path, 3)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if result != "line3\nline4\nline5" {
		t.Errorf("ReadTail = %q", result)
	}
}

func TestReadTail_FewerLinesAndEmpty(t *testing.T) {
	dir := t.TempDir()
	short := filepath.Join(dir, "short.log")
	empty := filepath.Join(dir, "empty.log")
	os.WriteFile(short, []byte("line1\nline2\n"), 0o644)
	os.WriteFile(empty, nil, 0o644)

	if got, _ := ReadTail(short, 10); got != "line1\nline2" {
		t.Errorf("ReadTail(short) = %q", got)
	}
	if got, err := ReadTail(empty, 10); err != nil || got != "" {
		t.Errorf("ReadTail(empty) = %q, %v", got, err)
	}
}

func TestReadTail_LargeFileDropsPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.log")
	var b strings.Builder
	for b.Len() < 2*tailWindow {
		b.WriteString("2025-01-01T00:00:00.000Z [INFO] filler line\n")
	}
	b.WriteString("2025-01-01T00:00:00.000Z [INFO] final line\n")
	os.WriteFile(path, []byte(b.String()), 0o644)

	got, err := ReadTail(path, 1)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if !strings.HasSuffix(got, "final line") {
		t.Errorf("ReadTail = %q", got)
	}
}

func TestReadTail_MissingFile(t *testing.T) {
	if _, err := ReadTail(filepath.Join(t.TempDir(), "absent.log"), 10); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLastMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keepwarm.log")
	content := strings.Join([]string{
		"2025-01-01T00:00:00.000Z [INFO] companion launched | pid=42",
		"2025-01-01T00:05:00.000Z [DEBUG] tick skipped | reason=cooldown",
	}, "\n") + "\n"
	os.WriteFile(path, []byte(content), 0o644)

	if got := LastMessage(path, LevelInfo); got != "companion launched" {
		t.Errorf("LastMessage(info) = %q", got)
	}
	if got := LastMessage(path, LevelDebug); got != "tick skipped" {
		t.Errorf("LastMessage(debug) = %q", got)
	}
	if got := LastMessage(filepath.Join(t.TempDir(), "none.log"), LevelInfo); got != "" {
		t.Errorf("LastMessage(missing) = %q", got)
	}
}

// ///////////////////////////////////////////////
// NewLogger Constructor
// ///////////////////////////////////////////////

func TestNewLoggerWritesFileAndTee(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	var tee bytes.Buffer

	logger, closer, err := NewLogger(Options{Path: path, Level: LevelInfo, MaxSizeMB: 1, Tee: &tee})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("constructor test")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "constructor test") {
		t.Errorf("expected log output in file, got %q", data)
	}
	if !strings.Contains(tee.String(), "constructor test") {
		t.Errorf("expected log output in tee, got %q", tee.String())
	}
}

func TestNewLoggerRequiresPath(t *testing.T) {
	if _, _, err := NewLogger(Options{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}
