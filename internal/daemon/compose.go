package daemon

import (
	"context"
	"errors"

	"overseer/internal/config"
	"overseer/internal/logging"
	"overseer/internal/opencode"
	"overseer/internal/store"
	"overseer/internal/types"
	"overseer/internal/watchdog"
)

const remoteLogService = "watchdog"

// Runtime is a fully wired daemon together with the resources it owns.
type Runtime struct {
	Daemon     *Daemon
	Supervisor *watchdog.Supervisor
	Journal    store.NudgeJournal
	OpenCode   *opencode.Client
	remote     *logging.RemoteLogger
}

type ComposeOptions struct {
	Version string
	Token   string
	Logger  logging.Logger
}

// Compose builds the daemon from configuration: OpenCode client, optional
// remote log forwarding, nudge journal, dispatcher, supervisor and the
// websocket hub.
func Compose(cfg config.CoreConfig, opts ComposeOptions) (*Runtime, error) {
	base := opts.Logger
	if base == nil {
		base = logging.New(nil, logging.ParseLevel(cfg.LogLevel()))
	}
	for _, warning := range cfg.Warnings() {
		base.Warn("config_warning", logging.F("error", warning))
	}
	timeout, _ := cfg.WatchdogTimeout()
	policy, _ := cfg.RefreshPolicy()

	client, err := opencode.NewClient(opencode.Config{
		BaseURL:   cfg.OpenCodeBaseURL(),
		Username:  cfg.OpenCodeUsername(),
		Password:  cfg.OpenCodePassword(),
		Directory: cfg.OpenCodeDirectory(),
		Timeout:   cfg.OpenCodeTimeout(),
		Logger:    base,
	})
	if err != nil {
		return nil, err
	}

	rt := &Runtime{OpenCode: client}
	logger := base
	if cfg.RemoteLogging() {
		rt.remote = logging.NewRemote(client, remoteLogService, logging.ParseLevel(cfg.LogLevel()))
		logger = logging.Multi(base, rt.remote)
	}

	journalPath, err := cfg.JournalPath()
	if err != nil {
		rt.closeRemote()
		return nil, err
	}
	journal, err := store.NewBboltNudgeJournal(journalPath, store.DefaultJournalMaxRecords)
	if err != nil {
		rt.closeRemote()
		return nil, err
	}
	rt.Journal = journal

	var sup *watchdog.Supervisor
	hub := NewHub(func() types.WatchdogSnapshot { return sup.Snapshot() }, logger)
	dispatcher := watchdog.NewDispatcher(watchdog.DispatcherConfig{
		Channel:  client,
		Recorder: journal,
		Timeout:  cfg.DispatchTimeout(),
		Logger:   logger,
		Notify:   hub.PublishNudge,
	})
	sup = watchdog.NewSupervisor(watchdog.Config{
		Enabled:       cfg.WatchdogEnabled(),
		Timeout:       timeout,
		NudgeMessage:  cfg.NudgeMessage(),
		RefreshPolicy: watchdog.RefreshPolicy(policy),
	}, dispatcher, watchdog.WithLogger(logger))
	rt.Supervisor = sup

	if sup.Enabled() {
		logger.Info("watchdog_initialized",
			logging.F("timeout_ms", timeout.Milliseconds()),
			logging.F("refresh_policy", policy),
		)
	} else {
		logger.Info("watchdog_disabled", logging.F("env", config.EnvWatchdogEnabled+"=false"))
	}

	rt.Daemon = New(Options{
		Addr:       cfg.DaemonAddress(),
		Token:      opts.Token,
		Version:    opts.Version,
		Logger:     logger,
		Supervisor: sup,
		Source:     client,
		Journal:    journal,
		Hub:        hub,
	})
	return rt, nil
}

// Close releases the journal and flushes forwarded log entries.
func (r *Runtime) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Supervisor != nil {
		r.Supervisor.Stop()
	}
	if r.Journal != nil {
		errs = append(errs, r.Journal.Close())
	}
	if r.remote != nil {
		errs = append(errs, r.remote.Close(ctx))
	}
	return errors.Join(errs...)
}

func (r *Runtime) closeRemote() {
	if r.remote != nil {
		_ = r.remote.Close(context.Background())
	}
}
