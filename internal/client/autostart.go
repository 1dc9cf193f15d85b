package client

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"overseer/internal/config"
)

// daemonCommand builds the detached `overseer daemon --background` child.
// A non-empty addr is handed over through the environment so the child
// binds the address this client is about to poll.
func daemonCommand(exe, addr string) *exec.Cmd {
	cmd := exec.Command(exe, "daemon", "--background")
	cmd.Env = os.Environ()
	if addr != "" {
		cmd.Env = append(cmd.Env, config.EnvOverseerDaemonAddr+"="+addr)
	}
	applyDaemonSysProcAttr(cmd)
	return cmd
}

// StartBackgroundDaemon re-executes the current binary as a detached
// daemon listening on addr. Early output, before the daemon opens its own
// log, is appended to the daemon log file.
func StartBackgroundDaemon(addr string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := daemonCommand(exe, addr)

	out, closeOut := openDaemonOutput()
	defer closeOut()
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		return err
	}
	if cmd.Process != nil {
		return cmd.Process.Release()
	}
	return errors.New("daemon process not started")
}

func openDaemonOutput() (io.Writer, func()) {
	logPath, err := config.DaemonLogPath()
	if err != nil {
		return io.Discard, func() {}
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		return io.Discard, func() {}
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return io.Discard, func() {}
	}
	return file, func() { _ = file.Close() }
}
