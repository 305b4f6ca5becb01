//go:build !windows

package proc

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the child in a new process group so graceful
// and forced termination signal the whole group.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
