package transcript

import (
	"context"
	"log/slog"
	"time"
)

// ActivitySource combines the locator and the reader: it resolves the
// transcript to inspect and returns its last activity time.
type ActivitySource struct {
	// Transcript, when set, is used directly and discovery is skipped.
	Transcript string
	// Dirs are the base directories searched by the locator.
	Dirs []string
	// Depth bounds the directory recursion.
	Depth int
	// Window is the number of tail bytes read.
	Window int64
	Locator Locator
	Logger  *slog.Logger
}

// Activity is the result of a probe.
type Activity struct {
	Path string
	At   time.Time
	OK   bool
}

// Probe locates the transcript and reads its latest timestamp. A missing
// transcript yields an Activity with OK false.
func (s *ActivitySource) Probe(ctx context.Context) Activity {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	if ctx.Err() != nil {
		return Activity{}
	}

	path := s.Transcript
	if path == "" {
		var ok bool
		path, ok = s.Locator.Find(s.Dirs, s.Depth)
		if !ok {
			log.Debug("no transcript found", "dirs", len(s.Dirs), "depth", s.Depth)
			return Activity{}
		}
	}

	at, ok := Latest(path, s.Window)
	if !ok {
		log.Debug("transcript unreadable", "path", path)
		return Activity{Path: path}
	}
	log.Debug("transcript activity", "path", path, "at", at)
	return Activity{Path: path, At: at, OK: true}
}
