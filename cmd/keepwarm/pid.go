package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ///////////////////////////////////////////////
// PID Lock
// ///////////////////////////////////////////////

// errAlreadyRunning reports a live daemon holding the PID file lock.
var errAlreadyRunning = errors.New("daemon already running")

// pidLock is a held lock on the PID file. The file content is "PID:TOKEN";
// the token keeps release from removing a file written by another instance.
type pidLock struct {
	path  string
	token string
	f     *os.File
}

func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// acquirePID locks dp's PID file and writes this process's PID to it. A
// lock held by another process yields an error wrapping errAlreadyRunning.
// The handle stays open until release.
func acquirePID(dp DataPaths) (*pidLock, error) {
	path := dp.PID()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		if pid := readPID(path); pid > 0 {
			return nil, fmt.Errorf("%w (pid %d)", errAlreadyRunning, pid)
		}
		return nil, fmt.Errorf("%w: %v", errAlreadyRunning, err)
	}

	l := &pidLock{path: path, token: pidToken(), f: f}
	if err := f.Truncate(0); err != nil {
		l.release()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d:%s", os.Getpid(), l.token); err != nil {
		l.release()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return l, nil
}

// release unlocks and closes the PID file, removing it when it still holds
// this instance's token.
func (l *pidLock) release() {
	if l == nil {
		return
	}
	if l.f != nil {
		_ = unlockFile(l.f)
		l.f.Close()
		l.f = nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	if _, token, ok := strings.Cut(string(data), ":"); ok && token == l.token {
		os.Remove(l.path)
	}
}

// readPID parses the PID recorded in path, or 0.
func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	head, _, _ := strings.Cut(string(data), ":")
	pid, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0
	}
	return pid
}
