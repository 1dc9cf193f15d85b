package daemon

import (
	"context"
	"time"

	"overseer/internal/events"
	"overseer/internal/logging"
)

const (
	defaultReconnectMin = time.Second
	defaultReconnectMax = 30 * time.Second
)

// EventSource is the inbound event stream. *opencode.Client implements it.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan events.Event, func(), error)
}

type EventHandler interface {
	HandleEvent(ev events.Event)
}

type eventPump struct {
	source  EventSource
	handler EventHandler
	logger  logging.Logger
	minWait time.Duration
	maxWait time.Duration
}

// run feeds every event to the handler in arrival order on the calling
// goroutine. When the stream fails or ends it reconnects with exponential
// backoff; a stream that delivered events resets the backoff.
func (p *eventPump) run(ctx context.Context) {
	minWait, maxWait := p.minWait, p.maxWait
	if minWait <= 0 {
		minWait = defaultReconnectMin
	}
	if maxWait < minWait {
		maxWait = defaultReconnectMax
		if maxWait < minWait {
			maxWait = minWait
		}
	}
	backoff := minWait
	for ctx.Err() == nil {
		delivered, err := p.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if delivered > 0 {
			backoff = minWait
		}
		if err != nil {
			p.logger.Warn("event_stream_connect_failed", logging.F("error", err), logging.F("retry_in", backoff))
		} else {
			p.logger.Info("event_stream_closed", logging.F("events", delivered), logging.F("retry_in", backoff))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxWait {
			backoff = maxWait
		}
	}
}

func (p *eventPump) consume(ctx context.Context) (int, error) {
	stream, cancel, err := p.source.Subscribe(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()
	p.logger.Info("event_stream_connected")
	delivered := 0
	for {
		select {
		case <-ctx.Done():
			return delivered, nil
		case ev, ok := <-stream:
			if !ok {
				return delivered, nil
			}
			delivered++
			p.handler.HandleEvent(ev)
		}
	}
}
