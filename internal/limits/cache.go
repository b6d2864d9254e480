package limits

import (
	"encoding/json"
	"os"
	"time"

	"tools.zach/dev/keepwarm/internal/atomicfile"
)

// ///////////////////////////////////////////////
// Cache File
// ///////////////////////////////////////////////

// CacheEntry is the on-disk shape of the limits cache.
type CacheEntry struct {
	// Timestamp is when the limits were fetched, in epoch milliseconds.
	Timestamp int64  `json:"timestamp"`
	Limits    Limits `json:"limits"`
}

// FetchedAt returns Timestamp as a time.
func (e CacheEntry) FetchedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// WriteCache persists limits fetched at t.
func WriteCache(path string, l Limits, t time.Time) error {
	return atomicfile.WriteJSON(path, CacheEntry{Timestamp: t.UnixMilli(), Limits: l}, 0o600)
}

// ReadCache reads a cache file in either the {timestamp, limits} shape or
// the bare {five_hour, seven_day} shape written by older tools. Bare files
// are dated by their modification time.
func ReadCache(path string) (CacheEntry, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CacheEntry{}, false
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return CacheEntry{}, false
	}

	if _, wrapped := probe["limits"]; wrapped {
		var e CacheEntry
		if err := json.Unmarshal(data, &e); err != nil || e.Limits.Empty() {
			return CacheEntry{}, false
		}
		if e.Timestamp <= 0 {
			ts, ok := mtimeMillis(path)
			if !ok {
				return CacheEntry{}, false
			}
			e.Timestamp = ts
		}
		return e, true
	}

	var bare Limits
	if err := json.Unmarshal(data, &bare); err != nil || bare.Empty() {
		return CacheEntry{}, false
	}
	ts, ok := mtimeMillis(path)
	if !ok {
		return CacheEntry{}, false
	}
	return CacheEntry{Timestamp: ts, Limits: bare}, true
}

func mtimeMillis(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return info.ModTime().UnixMilli(), true
}

// lookupCache returns the primary cache entry, else the newest legacy entry.
func lookupCache(primary string, legacy []string) (CacheEntry, string, bool) {
	if primary != "" {
		if e, ok := ReadCache(primary); ok {
			return e, primary, true
		}
	}
	var (
		best     CacheEntry
		bestPath string
	)
	for _, p := range legacy {
		e, ok := ReadCache(p)
		if !ok {
			continue
		}
		if bestPath == "" || e.Timestamp > best.Timestamp {
			best, bestPath = e, p
		}
	}
	return best, bestPath, bestPath != ""
}
