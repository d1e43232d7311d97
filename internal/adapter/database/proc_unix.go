//go:build unix

package database

import (
	"os/exec"
	"syscall"
)

// killProcessGroup runs the tool in its own process group and kills the whole
// group on cancellation, so helpers it spawned cannot keep the output pipe open.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
