package keepalive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// ///////////////////////////////////////////////
// Launch Lifecycle
// ///////////////////////////////////////////////

// Phase is a companion launch's position in its lifecycle:
// Starting -> Ready -> Primed, with Failed reachable from either of the
// first two.
type Phase int

const (
	Starting Phase = iota
	Ready
	Primed
	Failed
)

var phaseNames = [...]string{"starting", "ready", "primed", "failed"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Launch tracks one companion process.
type Launch struct {
	mu    sync.Mutex
	phase Phase
	err   error
	pid   int
	done  chan struct{}
}

func newLaunch() *Launch {
	return &Launch{phase: Starting, done: make(chan struct{})}
}

// Phase returns the current phase.
func (l *Launch) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// Err returns the failure cause once the launch is Failed.
func (l *Launch) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// PID returns the companion's process id, zero before Ready.
func (l *Launch) PID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pid
}

// Done is closed when the launch reaches Primed or Failed.
func (l *Launch) Done() <-chan struct{} { return l.done }

func (l *Launch) ready(pid int) {
	l.mu.Lock()
	l.phase, l.pid = Ready, pid
	l.mu.Unlock()
}

func (l *Launch) finish(err error) {
	l.mu.Lock()
	if err != nil {
		l.phase, l.err = Failed, err
	} else {
		l.phase = Primed
	}
	l.mu.Unlock()
	close(l.done)
}

// ///////////////////////////////////////////////
// Launcher
// ///////////////////////////////////////////////

// Starter starts the companion. Implementations return once the process is
// running (Ready) or has failed to start.
type Starter interface {
	Launch(ctx context.Context) (*Launch, error)
}

// Launcher spawns the companion CLI detached from the daemon, waits
// HelloDelay, then writes HelloText and closes its stdin.
type Launcher struct {
	Command string
	Args    []string
	// ExtraPath is prepended to PATH, skipping entries already present.
	ExtraPath  []string
	HelloText  string
	HelloDelay time.Duration
	Logger     *slog.Logger

	// environ overrides os.Environ in tests.
	environ func() []string
}

func (l *Launcher) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// Launch starts the companion and returns once it is Ready. Priming and
// reaping continue in the background; the returned Launch reports their
// outcome. A start failure returns an error and a Failed launch.
func (l *Launcher) Launch(ctx context.Context) (*Launch, error) {
	launch := newLaunch()
	log := l.logger()

	environ := l.environ
	if environ == nil {
		environ = os.Environ
	}
	env := withPath(environ(), l.ExtraPath)

	bin, err := resolve(l.Command, pathFrom(env))
	if err != nil {
		launch.finish(err)
		return launch, err
	}

	cmd := exec.Command(bin, l.Args...)
	cmd.Env = env
	cmd.SysProcAttr = detachAttr()
	stdin, err := cmd.StdinPipe()
	if err != nil {
		launch.finish(err)
		return launch, fmt.Errorf("companion stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		launch.finish(err)
		return launch, fmt.Errorf("start %s: %w", l.Command, err)
	}
	launch.ready(cmd.Process.Pid)
	log.Info("companion started", "command", bin, "pid", cmd.Process.Pid)

	// Reap the child so no zombie is left behind.
	go func() {
		err := cmd.Wait()
		log.Debug("companion exited", "pid", cmd.Process.Pid, "error", err)
	}()

	go func() {
		launch.finish(l.prime(ctx, stdin))
		if err := launch.Err(); err != nil {
			log.Warn("companion priming failed", "pid", launch.PID(), "error", err)
		} else {
			log.Debug("companion primed", "pid", launch.PID())
		}
	}()
	return launch, nil
}

// prime waits for the hello delay, writes the priming line and closes stdin.
func (l *Launcher) prime(ctx context.Context, stdin io.WriteCloser) error {
	timer := time.NewTimer(l.HelloDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		stdin.Close()
		return ctx.Err()
	}

	text := strings.TrimRight(l.HelloText, "\n") + "\n"
	if _, err := io.WriteString(stdin, text); err != nil {
		stdin.Close()
		return fmt.Errorf("write priming input: %w", err)
	}
	if err := stdin.Close(); err != nil {
		return fmt.Errorf("close companion stdin: %w", err)
	}
	return nil
}

// ///////////////////////////////////////////////
// PATH Handling
// ///////////////////////////////////////////////

// withPath returns env with extra directories prepended to PATH.
func withPath(env []string, extra []string) []string {
	out := slices.Clone(env)
	idx := slices.IndexFunc(out, func(kv string) bool { return strings.HasPrefix(kv, "PATH=") })
	current := ""
	if idx >= 0 {
		current = strings.TrimPrefix(out[idx], "PATH=")
	}

	have := filepath.SplitList(current)
	var add []string
	for _, d := range extra {
		if d != "" && !slices.Contains(have, d) && !slices.Contains(add, d) {
			add = append(add, d)
		}
	}
	if len(add) == 0 {
		return out
	}
	joined := strings.Join(add, string(os.PathListSeparator))
	if current != "" {
		joined += string(os.PathListSeparator) + current
	}
	if idx >= 0 {
		out[idx] = "PATH=" + joined
	} else {
		out = append(out, "PATH="+joined)
	}
	return out
}

func pathFrom(env []string) string {
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			return v
		}
	}
	return ""
}

// resolve finds name on the given PATH. exec.Command only consults the
// daemon's own PATH, which launch agents keep minimal.
func resolve(name, path string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("companion command is empty")
	}
	if strings.ContainsRune(name, filepath.Separator) || strings.Contains(name, "/") {
		return name, nil
	}
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	bin, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("find %s: %w", name, err)
	}
	return bin, nil
}
