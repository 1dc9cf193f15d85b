//go:build !windows

package client

import (
	"os/exec"
	"syscall"
)

// applyDaemonSysProcAttr puts the daemon in its own session so closing the
// launching terminal does not deliver SIGHUP to it.
func applyDaemonSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
