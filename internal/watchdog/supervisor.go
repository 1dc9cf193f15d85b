package watchdog

import (
	"context"
	"sync"
	"time"

	"overseer/internal/clock"
	"overseer/internal/events"
	"overseer/internal/logging"
	"overseer/internal/types"
)

const DefaultTimeout = 60 * time.Second

type RefreshPolicy string

const (
	// RefreshArmed only re-arms a countdown that is already open.
	RefreshArmed RefreshPolicy = "armed"
	// RefreshImplicitStart treats activity for a known session as a start
	// when no countdown is open.
	RefreshImplicitStart RefreshPolicy = "implicit-start"
)

type Config struct {
	Enabled       bool
	Timeout       time.Duration
	NudgeMessage  string
	RefreshPolicy RefreshPolicy
}

// Nudger performs the corrective action. *Dispatcher implements it.
type Nudger interface {
	Dispatch(ctx context.Context, sessionID, message string) error
}

type Observer = func(types.WatchdogSnapshot)

type Option func(*Supervisor)

func WithClock(clk clock.Clock) Option {
	return func(s *Supervisor) {
		if clk != nil {
			s.clock = clk
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Supervisor owns the watchdog state for one monitored session at a time.
//
// Every transition happens under mu. A countdown is identified by the
// generation it was armed with; cancelling or re-arming bumps the
// generation, so an expiry callback that lost the race with a cancel finds
// a newer generation and does nothing. The nudge itself is sent outside
// the lock.
//
// publishMu is taken before mu and held until observers have seen the
// snapshot, so observers receive snapshots in revision order.
type Supervisor struct {
	cfg    Config
	nudger Nudger
	clock  clock.Clock
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	publishMu sync.Mutex

	mu             sync.Mutex
	revision       uint64
	trackedSession string
	waiting        bool
	lastActivity   time.Time
	timer          *clock.Timer
	deadline       time.Time
	generation     uint64
	stopped        bool
	lastSignal     Signal
	lastEventType  string
	nudges         int
	lastNudgeAt    time.Time
	lastNudgeErr   string

	observerMu sync.Mutex
	observers  map[int]Observer
	nextID     int
}

func NewSupervisor(cfg Config, nudger Nudger, opts ...Option) *Supervisor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RefreshPolicy == "" {
		cfg.RefreshPolicy = RefreshArmed
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:       cfg,
		nudger:    nudger,
		clock:     clock.Real(),
		logger:    logging.Nop(),
		ctx:       ctx,
		cancel:    cancel,
		observers: map[int]Observer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Supervisor) Enabled() bool {
	return s.cfg.Enabled
}

// HandleEvent classifies ev and applies it. SessionCreated only updates
// the tracked session; a countdown armed for the previous session becomes
// stale and will not dispatch.
func (s *Supervisor) HandleEvent(ev events.Event) {
	if !s.cfg.Enabled || ev == nil {
		return
	}
	signal := Classify(ev)

	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if created, ok := ev.(events.SessionCreated); ok && created.SessionID != "" {
		if created.SessionID != s.trackedSession {
			s.logger.Debug("watchdog_tracking_session", logging.F("session_id", created.SessionID))
		}
		s.trackedSession = created.SessionID
	}
	if failed, ok := ev.(events.SessionError); ok {
		s.logger.Warn("watchdog_session_error",
			logging.F("session_id", failed.SessionID),
			logging.F("name", failed.Name),
			logging.F("error", failed.Message),
		)
	}
	sessionID := ev.Session()
	if sessionID == "" {
		sessionID = s.trackedSession
	}
	s.lastEventType = ev.Type()
	s.applyLocked(signal, sessionID)
	snapshot := s.transitionLocked()
	s.mu.Unlock()

	s.publish(snapshot)
}

// Handle applies an already classified signal.
func (s *Supervisor) Handle(signal Signal, sessionID string) {
	if !s.cfg.Enabled {
		return
	}
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.applyLocked(signal, sessionID)
	snapshot := s.transitionLocked()
	s.mu.Unlock()

	s.publish(snapshot)
}

func (s *Supervisor) applyLocked(signal Signal, sessionID string) {
	switch signal {
	case StartsMonitoring:
		s.startLocked(sessionID)
		return
	case RefreshesMonitoring:
		if !s.waiting {
			if s.cfg.RefreshPolicy == RefreshImplicitStart && sessionID != "" {
				s.startLocked(sessionID)
			}
			return
		}
		s.cancelLocked()
		s.armLocked()
		s.lastActivity = s.clock.Now()
	case StopsMonitoring:
		s.waiting = false
		s.cancelLocked()
	default:
		return
	}
	s.lastSignal = signal
}

func (s *Supervisor) startLocked(sessionID string) {
	if sessionID == "" {
		s.logger.Debug("watchdog_start_without_session")
		return
	}
	s.cancelLocked()
	s.trackedSession = sessionID
	s.waiting = true
	s.armLocked()
	s.lastActivity = s.clock.Now()
	s.lastSignal = StartsMonitoring
}

func (s *Supervisor) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.deadline = time.Time{}
	s.generation++
}

func (s *Supervisor) armLocked() {
	s.generation++
	generation := s.generation
	sessionID := s.trackedSession
	s.deadline = s.clock.Now().Add(s.cfg.Timeout)
	s.timer = s.clock.AfterFunc(s.cfg.Timeout, func() {
		s.expire(generation, sessionID)
	})
}

// expire runs when a countdown elapses. The window is single-shot: it does
// not re-arm, and waiting stays true so the next activity opens a new one.
func (s *Supervisor) expire(generation uint64, sessionID string) {
	s.publishMu.Lock()
	s.mu.Lock()
	if generation != s.generation || s.stopped || !s.waiting || s.trackedSession == "" || s.trackedSession != sessionID {
		if generation == s.generation {
			s.timer = nil
			s.deadline = time.Time{}
		}
		s.mu.Unlock()
		s.publishMu.Unlock()
		s.logger.Debug("watchdog_stale_expiry", logging.F("session_id", sessionID))
		return
	}
	s.timer = nil
	s.deadline = time.Time{}
	message := s.cfg.NudgeMessage
	ctx := s.ctx
	snapshot := s.transitionLocked()
	s.mu.Unlock()
	s.publish(snapshot)
	s.publishMu.Unlock()

	s.logger.Warn("watchdog_session_hung",
		logging.F("session_id", sessionID),
		logging.F("timeout_ms", s.cfg.Timeout.Milliseconds()),
	)
	var err error
	if s.nudger == nil {
		err = &DispatchError{SessionID: sessionID, Err: errNoNudger}
	} else {
		err = s.nudger.Dispatch(ctx, sessionID, message)
	}

	if err != nil {
		s.logger.Error("watchdog_nudge_failed", logging.F("session_id", sessionID), logging.F("error", err))
	} else {
		s.logger.Info("watchdog_nudge_sent", logging.F("session_id", sessionID))
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.mu.Lock()
	s.nudges++
	s.lastNudgeAt = s.clock.Now()
	s.lastNudgeErr = ""
	if err != nil {
		s.lastNudgeErr = err.Error()
	}
	snapshot = s.transitionLocked()
	s.mu.Unlock()
	s.publish(snapshot)
}

// Stop cancels any pending countdown and in-flight nudge. The supervisor
// ignores all further input.
func (s *Supervisor) Stop() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.waiting = false
	s.cancelLocked()
	snapshot := s.transitionLocked()
	s.mu.Unlock()
	s.cancel()
	s.publish(snapshot)
}

func (s *Supervisor) Snapshot() types.WatchdogSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// transitionLocked bumps the revision and returns the snapshot to publish.
func (s *Supervisor) transitionLocked() types.WatchdogSnapshot {
	s.revision++
	return s.snapshotLocked()
}

func (s *Supervisor) snapshotLocked() types.WatchdogSnapshot {
	snapshot := types.WatchdogSnapshot{
		Revision:         s.revision,
		Enabled:          s.cfg.Enabled,
		RefreshPolicy:    string(s.cfg.RefreshPolicy),
		TimeoutMS:        s.cfg.Timeout.Milliseconds(),
		TrackedSessionID: s.trackedSession,
		Waiting:          s.waiting,
		Armed:            s.timer != nil,
		LastEventType:    s.lastEventType,
		Nudges:           s.nudges,
		LastNudgeError:   s.lastNudgeErr,
	}
	if s.lastSignal != Ignored {
		snapshot.LastSignal = s.lastSignal.wire()
	}
	snapshot.LastActivity = timePtr(s.lastActivity)
	snapshot.Deadline = timePtr(s.deadline)
	snapshot.LastNudgeAt = timePtr(s.lastNudgeAt)
	return snapshot
}

// Subscribe registers fn to receive a snapshot after every transition.
// Observers run on the goroutine that caused the transition, one at a
// time. They must not block or call back into the supervisor's event
// methods. The returned func unregisters fn.
func (s *Supervisor) Subscribe(fn Observer) func() {
	if fn == nil {
		return func() {}
	}
	s.observerMu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.observerMu.Unlock()
	return func() {
		s.observerMu.Lock()
		delete(s.observers, id)
		s.observerMu.Unlock()
	}
}

func (s *Supervisor) publish(snapshot types.WatchdogSnapshot) {
	s.observerMu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.observerMu.Unlock()
	for _, fn := range observers {
		fn(snapshot)
	}
}

func timePtr(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}
