// Package watch reports changes to a single file. It watches the file's
// directory with fsnotify, so files replaced by rename (atomic writes) keep
// being observed, and falls back to stat polling when fsnotify is unavailable.
package watch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the stat interval used in polling mode.
const DefaultPollInterval = 2 * time.Second

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher monitors one file for changes.
type Watcher struct {
	// path is the cleaned path of the watched file.
	path string
	// events delivers a signal each time the file changes.
	// Buffered to 1 so back-to-back writes coalesce.
	events chan struct{}
	// done is closed by [Watcher.Close] to stop the goroutines.
	done chan struct{}
	// fsw is the underlying fsnotify watcher; nil when polling.
	fsw *fsnotify.Watcher
	// once makes [Watcher.Close] idempotent.
	once sync.Once
	// polling is true after falling back to stat polling.
	polling atomic.Bool
	// pollInterval is the time between stats in polling mode.
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option customizes a [Watcher].
type Option func(*Watcher)

// WithPollInterval sets the polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// forcePolling skips fsnotify entirely.
func forcePolling() Option {
	return func(w *Watcher) { w.polling.Store(true) }
}

// New starts watching path. The file does not need to exist yet, but its
// directory is created if missing so the watch can be placed.
func New(path string, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		path:         filepath.Clean(path),
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create watch directory: %w", err)
	}

	if w.polling.Load() {
		go w.poll(w.fingerprint())
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.polling.Store(true)
		go w.poll(w.fingerprint())
		return w, nil
	}
	if err := fsw.Add(dir); err != nil {
		w.logger.Info("cannot watch directory, falling back to polling", "path", dir, "error", err)
		fsw.Close()
		w.polling.Store(true)
		go w.poll(w.fingerprint())
		return w, nil
	}

	w.fsw = fsw
	go w.watch()
	return w, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool { return w.polling.Load() }

// Events returns a channel that receives a signal when the file changes.
func (w *Watcher) Events() <-chan struct{} { return w.events }

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
		}
	})
	return err
}

// watch forwards write, create and rename-into-place events for the file.
// On an fsnotify error it switches to polling.
func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.notify()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Info("fsnotify error, switching to polling", "error", err)
			w.fsw.Close()
			w.polling.Store(true)
			go w.poll(w.fingerprint())
			return
		}
	}
}

// poll stats the file on a ticker and signals when its modification time
// or size differs from last. Callers take last before starting poll so a
// change made right after the switch is still seen.
func (w *Watcher) poll(last fingerprint) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			fp := w.fingerprint()
			if fp != last {
				last = fp
				w.notify()
			}
		}
	}
}

type fingerprint struct {
	mod  time.Time
	size int64
}

func (w *Watcher) fingerprint() fingerprint {
	info, err := os.Stat(w.path)
	if err != nil {
		return fingerprint{}
	}
	return fingerprint{mod: info.ModTime(), size: info.Size()}
}

// notify sends one signal; a pending signal absorbs further ones.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
