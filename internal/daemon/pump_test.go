package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"overseer/internal/events"
	"overseer/internal/logging"
)

type scriptedSource struct {
	mu       sync.Mutex
	attempts int
	streams  [][]events.Event
	fail     map[int]error
}

func (s *scriptedSource) Subscribe(ctx context.Context) (<-chan events.Event, func(), error) {
	s.mu.Lock()
	attempt := s.attempts
	s.attempts++
	s.mu.Unlock()

	if err := s.fail[attempt]; err != nil {
		return nil, nil, err
	}
	ch := make(chan events.Event, 8)
	idx := attempt
	if idx >= len(s.streams) {
		// Hold the stream open until the pump is cancelled.
		return ch, func() {}, nil
	}
	for _, ev := range s.streams[idx] {
		ch <- ev
	}
	close(ch)
	return ch, func() {}, nil
}

func (s *scriptedSource) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

type recordingHandler struct {
	mu     sync.Mutex
	events []events.Event
}

func (h *recordingHandler) HandleEvent(ev events.Event) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
}

func (h *recordingHandler) Events() []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]events.Event(nil), h.events...)
}

func TestEventPumpReconnectsAndPreservesOrder(t *testing.T) {
	source := &scriptedSource{
		fail: map[int]error{0: errors.New("connection refused")},
		streams: [][]events.Event{
			nil,
			{events.SessionStatus{SessionID: "s", Status: events.StatusRunning}, events.MessageUpdated{SessionID: "s"}},
			{events.SessionIdle{SessionID: "s"}},
		},
	}
	handler := &recordingHandler{}
	pump := &eventPump{
		source:  source,
		handler: handler,
		logger:  logging.Nop(),
		minWait: time.Millisecond,
		maxWait: 4 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pump.run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(handler.Events()) < 3 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("pump did not stop after cancel")
	}

	got := handler.Events()
	want := []events.Event{
		events.SessionStatus{SessionID: "s", Status: events.StatusRunning},
		events.MessageUpdated{SessionID: "s"},
		events.SessionIdle{SessionID: "s"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %#v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %#v want %#v", i, got[i], want[i])
		}
	}
	if source.Attempts() < 3 {
		t.Fatalf("expected at least 3 subscribe attempts, got %d", source.Attempts())
	}
}

func TestEventPumpStopsWhileWaitingToReconnect(t *testing.T) {
	source := &scriptedSource{fail: map[int]error{0: errors.New("down")}}
	pump := &eventPump{
		source:  source,
		handler: &recordingHandler{},
		logger:  logging.Nop(),
		minWait: time.Hour,
		maxWait: time.Hour,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pump.run(ctx)
		close(done)
	}()
	for source.Attempts() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("pump did not stop during backoff")
	}
}
