package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"overseer/internal/config"
	"overseer/internal/daemon"
	"overseer/internal/logging"
)

type DaemonCommand struct {
	stderr    io.Writer
	runDaemon func(background bool) error
}

func NewDaemonCommand(stderr io.Writer, runDaemon func(background bool) error) *DaemonCommand {
	return &DaemonCommand{
		stderr:    stderr,
		runDaemon: runDaemon,
	}
}

func (c *DaemonCommand) Run(args []string) error {
	fs := pflag.NewFlagSet("daemon", pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	background := fs.Bool("background", false, "run in background (logs to file)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return errors.New("daemon takes no arguments")
	}
	return c.runDaemon(*background)
}

func runDaemonProcess(background bool) error {
	cfg, err := config.LoadCoreConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := openDaemonLogger(cfg, background)
	if err != nil {
		return err
	}
	defer closeLog()

	dataDir, err := config.DataDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return err
	}
	tokenPath, err := config.TokenPath()
	if err != nil {
		return err
	}
	token, err := daemon.LoadOrCreateToken(tokenPath)
	if err != nil {
		return err
	}

	rt, err := daemon.Compose(cfg, daemon.ComposeOptions{
		Version: buildVersion(),
		Token:   token,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("daemon_compose_failed", logging.F("error", err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := rt.Daemon.Run(ctx)
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	closeErr := rt.Close(closeCtx)
	logger.Info("daemon_stopped")
	return errors.Join(runErr, closeErr)
}

// openDaemonLogger writes to the daemon log when running in the background
// or when [logging] file is set, and to stderr otherwise.
func openDaemonLogger(cfg config.CoreConfig, background bool) (logging.Logger, func(), error) {
	level := logging.ParseLevel(cfg.LogLevel())
	path, err := cfg.LogFile()
	if err != nil {
		return nil, nil, err
	}
	if path == "" && background {
		path, err = config.DaemonLogPath()
		if err != nil {
			return nil, nil, err
		}
	}
	if path == "" {
		return logging.New(os.Stderr, level), func() {}, nil
	}
	logger, closer, err := logging.OpenFile(path, level)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = closer.Close() }, nil
}
