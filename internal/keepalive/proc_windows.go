// Windows process helpers for the companion launcher.
//
// This file is compiled only on Windows. CREATE_NEW_PROCESS_GROUP from
// [golang.org/x/sys/windows] keeps console control events sent to the daemon
// from reaching the companion.

//go:build windows

package keepalive

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

// detachAttr starts the child in a new process group.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

// isExecutable reports whether path is a regular file with an executable
// extension.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".exe", ".cmd", ".bat", ".com":
		return true
	}
	return false
}
