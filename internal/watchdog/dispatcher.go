package watchdog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"overseer/internal/clock"
	"overseer/internal/logging"
	"overseer/internal/opencode"
	"overseer/internal/types"
)

const defaultDispatchTimeout = 30 * time.Second

// Channel delivers a chat turn into a session.
type Channel interface {
	SendMessage(ctx context.Context, sessionID, role string, parts []opencode.Part) error
}

// Recorder persists dispatch outcomes.
type Recorder interface {
	Append(ctx context.Context, record *types.NudgeRecord) (*types.NudgeRecord, error)
}

type DispatchError struct {
	SessionID string
	Err       error
}

func (e *DispatchError) Error() string {
	if e == nil {
		return "nudge dispatch failed"
	}
	return fmt.Sprintf("nudge dispatch to session %s failed: %v", e.SessionID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type DispatcherConfig struct {
	Channel Channel
	// Recorder is optional; when set every attempt is journaled.
	Recorder Recorder
	Timeout  time.Duration
	Clock    clock.Clock
	Logger   logging.Logger
	// Notify, when set, receives every journaled record.
	Notify func(types.NudgeRecord)
}

type Dispatcher struct {
	channel  Channel
	recorder Recorder
	timeout  time.Duration
	clock    clock.Clock
	logger   logging.Logger
	notify   func(types.NudgeRecord)
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Dispatcher{
		channel:  cfg.Channel,
		recorder: cfg.Recorder,
		timeout:  timeout,
		clock:    clk,
		logger:   logger,
		notify:   cfg.Notify,
	}
}

// Dispatch sends message to sessionID as a single user text turn. Failures
// are returned as *DispatchError; journaling problems are only logged.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, message string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return &DispatchError{Err: errors.New("session id is required")}
	}
	if d.channel == nil {
		return &DispatchError{SessionID: sessionID, Err: errors.New("no message channel configured")}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	started := d.clock.Now()
	err := d.channel.SendMessage(sendCtx, sessionID, opencode.RoleUser, []opencode.Part{opencode.TextPart(message)})
	elapsed := d.clock.Now().Sub(started)

	record := types.NudgeRecord{
		SessionID:  sessionID,
		Message:    message,
		SentAt:     started.UTC(),
		DurationMS: elapsed.Milliseconds(),
		Success:    err == nil,
	}
	if err != nil {
		record.Error = err.Error()
	}
	d.record(ctx, record)

	if err != nil {
		return &DispatchError{SessionID: sessionID, Err: err}
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, record types.NudgeRecord) {
	if d.recorder != nil {
		// The send may have used up ctx; the journal write gets its own
		// short deadline.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		stored, err := d.recorder.Append(recordCtx, &record)
		cancel()
		if err != nil {
			d.logger.Warn("watchdog_journal_append_failed",
				logging.F("session_id", record.SessionID),
				logging.F("error", err),
			)
		} else if stored != nil {
			record = *stored
		}
	}
	if d.notify != nil {
		d.notify(record)
	}
}

var errNoNudger = errors.New("no dispatcher configured")
