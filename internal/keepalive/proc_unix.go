// Unix process helpers for the companion launcher.
//
// This file is compiled on all non-Windows platforms. The companion runs in
// its own process group so terminal signals aimed at the daemon (Ctrl+C in a
// foreground `keepwarm run`) do not reach it.

//go:build !windows

package keepalive

import (
	"os"
	"syscall"
)

// detachAttr places the child in a new process group.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// isExecutable reports whether path is a regular file with an execute bit.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
