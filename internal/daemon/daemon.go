package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"overseer/internal/logging"
	"overseer/internal/types"
)

// Supervisor is the part of *watchdog.Supervisor the daemon drives.
type Supervisor interface {
	EventHandler
	WatchdogReader
	Enabled() bool
	Subscribe(fn func(types.WatchdogSnapshot)) func()
	Stop()
}

type Options struct {
	Addr       string
	Token      string
	Version    string
	Logger     logging.Logger
	Supervisor Supervisor
	Source     EventSource
	Journal    NudgeLister
	Hub        *Hub
	// Reconnect bounds for the event stream; zero selects 1s and 30s.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

type Daemon struct {
	opts   Options
	logger logging.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

func New(opts Options) *Daemon {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Daemon{opts: opts, logger: logger}
}

// Handler builds the full HTTP handler: routes, bearer auth for /v1/, and
// request logging.
func (d *Daemon) Handler() http.Handler {
	api := &API{
		Version: d.opts.Version,
		Journal: d.opts.Journal,
		Logger:  d.logger,
	}
	if d.opts.Supervisor != nil {
		api.Watchdog = d.opts.Supervisor
	}
	if d.opts.Hub != nil {
		api.Stream = d.opts.Hub
	}
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	return LoggingMiddleware(d.logger, TokenAuthMiddleware(d.opts.Token, mux))
}

// Addr returns the bound listen address once Run has started listening.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return d.opts.Addr
	}
	return d.listener.Addr().String()
}

// Run serves the API and, when the watchdog is enabled, pumps the event
// stream into the supervisor until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", d.opts.Addr)
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	d.mu.Lock()
	d.server = server
	d.listener = listener
	d.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	sup := d.opts.Supervisor
	if sup != nil && d.opts.Hub != nil {
		unsubscribe := sup.Subscribe(d.opts.Hub.PublishSnapshot)
		defer unsubscribe()
	}
	if sup != nil && sup.Enabled() && d.opts.Source != nil {
		pump := &eventPump{
			source:  d.opts.Source,
			handler: sup,
			logger:  d.logger,
			minWait: d.opts.ReconnectMin,
			maxWait: d.opts.ReconnectMax,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			pump.run(runCtx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("daemon_listening", logging.F("addr", listener.Addr().String()))
		errCh <- server.Serve(listener)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if d.opts.Hub != nil {
			d.opts.Hub.Close()
		}
		runErr = server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}
	cancel()
	wg.Wait()
	if sup != nil {
		sup.Stop()
	}
	if d.opts.Hub != nil {
		d.opts.Hub.Close()
	}
	return runErr
}
