// Package logger provides structured logging with custom levels and formatting
// for the keepwarm daemon and its one-shot commands.
//
// Log output format:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, key2=value2
//
// Custom levels beyond the standard slog set:
//   - LevelTrace (-8): verbose diagnostic tracing
//   - LevelFail  (12): unrecoverable errors
package logger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ///////////////////////////////////////////////
// Custom Levels
// ///////////////////////////////////////////////

const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug // -4
	LevelInfo  slog.Level = slog.LevelInfo  // 0
	LevelWarn  slog.Level = slog.LevelWarn  // 4
	LevelError slog.Level = slog.LevelError // 8
	LevelFail  slog.Level = 12
)

var levelNames = []struct {
	max  slog.Level
	name string
}{
	{LevelTrace, "TRACE"},
	{LevelDebug, "DEBUG"},
	{LevelInfo, "INFO"},
	{LevelWarn, "WARN"},
	{LevelError, "ERROR"},
}

// levelName returns the display name for a log level.
func levelName(l slog.Level) string {
	for _, n := range levelNames {
		if l <= n.max {
			return n.name
		}
	}
	return "FAIL"
}

// ParseLevel converts a level string to slog.Level.
// Supports: trace, debug, info, warn, error, fail (case-insensitive).
// Returns LevelInfo for unrecognized strings.
func ParseLevel(s string) slog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, n := range levelNames {
		if strings.ToLower(n.name) == s {
			return n.max
		}
	}
	if s == "fail" {
		return LevelFail
	}
	return LevelInfo
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// lineEnding is CRLF on Windows, LF elsewhere.
var lineEnding = "\n"

func init() {
	if runtime.GOOS == "windows" {
		lineEnding = "\r\n"
	}
}

// Handler is a slog.Handler that formats log records as:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, ...
//
// Attributes added through WithAttrs are rendered once and reused for every
// record.
type Handler struct {
	w     io.Writer
	mu    *sync.Mutex
	level slog.Leveler
	// pre holds the already-rendered "k=v" pairs from WithAttrs.
	pre []string
	// group is the dot-joined key prefix from WithGroup.
	group string
}

// NewHandler creates a Handler that writes to w, filtering records below level.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes a log record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05.000Z"))
	buf.WriteString(" [")
	buf.WriteString(levelName(r.Level))
	buf.WriteString("] ")
	buf.WriteString(r.Message)

	pairs := append([]string(nil), h.pre...)
	r.Attrs(func(a slog.Attr) bool {
		pairs = appendAttr(pairs, h.group, a)
		return true
	})
	if len(pairs) > 0 {
		buf.WriteString(" | ")
		buf.WriteString(strings.Join(pairs, ", "))
	}
	buf.WriteString(lineEnding)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

// WithAttrs returns a new Handler with the given attributes pre-rendered.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	pre := append([]string(nil), h.pre...)
	for _, a := range attrs {
		pre = appendAttr(pre, h.group, a)
	}
	return &Handler{w: h.w, mu: h.mu, level: h.level, pre: pre, group: h.group}
}

// WithGroup returns a new Handler whose attribute keys are prefixed with
// name (e.g. "limits.status").
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{w: h.w, mu: h.mu, level: h.level, pre: h.pre, group: joinKey(h.group, name)}
}

// appendAttr renders a as "key=value" pairs, flattening group attributes.
func appendAttr(dst []string, prefix string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			sub = joinKey(prefix, a.Key)
		}
		for _, ga := range a.Value.Group() {
			dst = appendAttr(dst, sub, ga)
		}
		return dst
	}
	return append(dst, joinKey(prefix, a.Key)+"="+formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	default:
		return v.String()
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// ///////////////////////////////////////////////
// Logger Constructor
// ///////////////////////////////////////////////

// Options configures [NewLogger].
type Options struct {
	// Path is the log file; rotation is handled by lumberjack.
	Path string
	// Level is the minimum level written.
	Level slog.Level
	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int
	// Tee, when non-nil, receives a copy of every line (stderr in verbose mode).
	Tee io.Writer
}

// NewLogger creates a slog.Logger that writes to a rotating log file.
// The returned io.Closer must be closed to flush pending writes.
func NewLogger(opts Options) (*slog.Logger, io.Closer, error) {
	if opts.Path == "" {
		return nil, nil, errors.New("log path is empty")
	}
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 5
	}
	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    maxSize,
		MaxBackups: 3,
		MaxAge:     28,
	}

	var w io.Writer = lj
	if opts.Tee != nil {
		w = io.MultiWriter(lj, opts.Tee)
	}
	return slog.New(NewHandler(w, opts.Level)), lj, nil
}

// ///////////////////////////////////////////////
// Helper Functions
// ///////////////////////////////////////////////

// Trace logs a message at LevelTrace.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Fail logs a message at LevelFail.
func Fail(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFail, msg, args...)
}

// ///////////////////////////////////////////////
// ReadTail
// ///////////////////////////////////////////////

// tailWindow bounds how much of the log file ReadTail looks at.
const tailWindow = 64 << 10

// ReadTail returns up to the last n lines from the file at path, reading at
// most the final 64 KiB. Blank lines are dropped.
func ReadTail(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat log file: %w", err)
	}
	size := info.Size()
	off := max(size-tailWindow, 0)
	buf := make([]byte, size-off)
	if _, err := f.ReadAt(buf, off); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading log file: %w", err)
	}

	raw := strings.Split(strings.ReplaceAll(string(buf), "\r\n", "\n"), "\n")
	if off > 0 && len(raw) > 0 {
		raw = raw[1:] // first line is probably cut mid-way
	}
	lines := make([]string, 0, n)
	for i := len(raw) - 1; i >= 0 && len(lines) < n; i-- {
		if strings.TrimSpace(raw[i]) == "" {
			continue
		}
		lines = append(lines, raw[i])
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n"), nil
}

// LastMessage returns the message portion of the most recent log line at or
// above minLevel, or "" when none is found.
func LastMessage(path string, minLevel slog.Level) string {
	tail, err := ReadTail(path, 50)
	if err != nil || tail == "" {
		return ""
	}
	lines := strings.Split(tail, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		open := strings.Index(line, " [")
		end := strings.Index(line, "] ")
		if open < 0 || end < open {
			continue
		}
		if ParseLevel(line[open+2:end]) < minLevel {
			continue
		}
		msg := line[end+2:]
		if idx := strings.Index(msg, " | "); idx >= 0 {
			msg = msg[:idx]
		}
		return msg
	}
	return ""
}
