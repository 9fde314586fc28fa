//go:build !windows

package stage

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr places the child in its own process group so a timeout kill
// reaches any subprocesses the stage spawned.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killTree(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
