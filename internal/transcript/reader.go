package transcript

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ///////////////////////////////////////////////
// Timestamp Extractors
// ///////////////////////////////////////////////

// extractor pulls a timestamp out of one JSON line.
type extractor func(line string) (time.Time, bool)

// timestampPaths lists where transcript writers have been seen to put the
// event time, in probe order.
var timestampPaths = []string{
	"timestamp",
	"message.timestamp",
	"snapshot.timestamp",
	"data.timestamp",
	"payload.timestamp",
	"ts",
}

var extractors = func() []extractor {
	out := make([]extractor, 0, len(timestampPaths))
	for _, p := range timestampPaths {
		out = append(out, fromPath(p))
	}
	return out
}()

func fromPath(path string) extractor {
	return func(line string) (time.Time, bool) {
		return ParseTimestamp(gjson.Get(line, path))
	}
}

// ParseTimestamp converts a gjson value to a time. Strings must be RFC 3339;
// numbers are epoch milliseconds, or seconds when below 1e12.
func ParseTimestamp(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.String:
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(v.Str))
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case gjson.Number:
		n := v.Float()
		if n <= 0 {
			return time.Time{}, false
		}
		if n < 1e12 {
			return time.UnixMilli(int64(n * 1000)), true
		}
		return time.UnixMilli(int64(n)), true
	default:
		return time.Time{}, false
	}
}

// lineTimestamp applies the extractor table to a single line.
func lineTimestamp(line []byte) (time.Time, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !gjson.ValidBytes(line) {
		return time.Time{}, false
	}
	s := string(line)
	for _, ex := range extractors {
		if t, ok := ex(s); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// ///////////////////////////////////////////////
// Windowed Reads
// ///////////////////////////////////////////////

// Latest returns the newest event time found in the last window bytes of
// path. Without a parsable timestamp it falls back to the file's
// modification time; ok is false only when the file cannot be opened.
func Latest(path string, window int64) (time.Time, bool) {
	return scan(path, window, true)
}

// First returns the earliest event time found in the first window bytes of
// path, with the same fallback rules as [Latest].
func First(path string, window int64) (time.Time, bool) {
	return scan(path, window, false)
}

func scan(path string, window int64, fromEnd bool) (time.Time, bool) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return time.Time{}, false
	}

	buf, err := readWindow(f, info.Size(), window, fromEnd)
	if err != nil {
		return info.ModTime(), true
	}

	lines := bytes.Split(buf, []byte{'\n'})
	if fromEnd {
		for i := len(lines) - 1; i >= 0; i-- {
			if t, ok := lineTimestamp(lines[i]); ok {
				return t, true
			}
		}
	} else {
		for _, line := range lines {
			if t, ok := lineTimestamp(line); ok {
				return t, true
			}
		}
	}
	return info.ModTime(), true
}

// readWindow reads at most window bytes from the head or tail of f. A line
// cut by the window edge simply fails to parse later.
func readWindow(f io.ReaderAt, size, window int64, fromEnd bool) ([]byte, error) {
	if window <= 0 || window > size {
		window = size
	}
	off := int64(0)
	if fromEnd {
		off = size - window
	}
	buf := make([]byte, window)
	n, err := f.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}
