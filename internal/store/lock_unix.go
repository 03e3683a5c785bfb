//go:build unix

package store

import "syscall"

// processAlive checks if a process with the given PID is running on
// Unix systems by sending signal 0, which never actually delivers.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.ESRCH {
		return false
	}
	if err == syscall.EPERM {
		return true
	}
	return false
}
