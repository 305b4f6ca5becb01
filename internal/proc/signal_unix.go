//go:build !windows

package proc

import "syscall"

// signalGroup sends a signal to the process group led by pid.
func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

// Terminate sends SIGTERM directly to a pid we did not spawn, such as a
// shared instance found by name. It does not target the process group.
func Terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// processExists checks whether a process with the given pid exists.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
