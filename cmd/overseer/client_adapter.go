package main

import (
	"context"

	"overseer/internal/app"
	overseerclient "overseer/internal/client"
	"overseer/internal/config"
	"overseer/internal/types"
)

type clientFactory func() (commandClient, error)

type commandClient interface {
	EnsureDaemon(ctx context.Context) error
	Health(ctx context.Context) (*overseerclient.HealthResponse, error)
	WatchdogStatus(ctx context.Context) (*types.WatchdogSnapshot, error)
	Nudges(ctx context.Context, sessionID string, limit int) ([]*types.NudgeRecord, error)
	RunWatch(ctx context.Context) error
}

type overseerClientAdapter struct {
	client *overseerclient.Client
}

func newOverseerClient() (commandClient, error) {
	cfg, err := config.LoadCoreConfig()
	if err != nil {
		return nil, err
	}
	client, err := overseerclient.New(cfg)
	if err != nil {
		return nil, err
	}
	return &overseerClientAdapter{client: client}, nil
}

func (c *overseerClientAdapter) EnsureDaemon(ctx context.Context) error {
	return c.client.EnsureDaemon(ctx)
}

func (c *overseerClientAdapter) Health(ctx context.Context) (*overseerclient.HealthResponse, error) {
	return c.client.Health(ctx)
}

func (c *overseerClientAdapter) WatchdogStatus(ctx context.Context) (*types.WatchdogSnapshot, error) {
	return c.client.WatchdogStatus(ctx)
}

func (c *overseerClientAdapter) Nudges(ctx context.Context, sessionID string, limit int) ([]*types.NudgeRecord, error) {
	return c.client.Nudges(ctx, sessionID, limit)
}

func (c *overseerClientAdapter) RunWatch(ctx context.Context) error {
	stream, err := c.client.WatchdogStream()
	if err != nil {
		return err
	}
	defer stream.Close()
	return app.RunWatch(ctx, stream)
}
