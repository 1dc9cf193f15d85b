package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

type WatchCommand struct {
	stderr    io.Writer
	newClient clientFactory
}

func NewWatchCommand(stderr io.Writer, newClient clientFactory) *WatchCommand {
	return &WatchCommand{
		stderr:    stderr,
		newClient: newClient,
	}
}

func (c *WatchCommand) Run(args []string) error {
	fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	client, err := c.newClient()
	if err != nil {
		return err
	}
	if err := client.EnsureDaemon(ctx); err != nil {
		return err
	}
	return client.RunWatch(ctx)
}
