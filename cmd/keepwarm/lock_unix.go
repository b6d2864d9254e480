//go:build !windows

package main

import (
	"fmt"
	"os"
	"syscall"
)

// lockFile takes a non-blocking exclusive flock on f. EWOULDBLOCK means
// another keepwarm daemon owns the data directory.
func lockFile(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return fmt.Errorf("lock %s: %w", f.Name(), err)
	}
	return nil
}

// unlockFile releases the flock on f. Closing f releases it as well.
func unlockFile(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("unlock %s: %w", f.Name(), err)
	}
	return nil
}
