package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"overseer/internal/events"
	"overseer/internal/logging"
	"overseer/internal/types"
	"overseer/internal/watchdog"
)

type channelSource struct {
	ch chan events.Event
}

func (s *channelSource) Subscribe(ctx context.Context) (<-chan events.Event, func(), error) {
	return s.ch, func() {}, nil
}

type countingNudger struct {
	mu       sync.Mutex
	sessions []string
	sent     chan struct{}
}

func (n *countingNudger) Dispatch(_ context.Context, sessionID, _ string) error {
	n.mu.Lock()
	n.sessions = append(n.sessions, sessionID)
	n.mu.Unlock()
	select {
	case n.sent <- struct{}{}:
	default:
	}
	return nil
}

func startDaemon(t *testing.T, opts Options) (*Daemon, string, func()) {
	t.Helper()
	opts.Addr = "127.0.0.1:0"
	d := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for d.Addr() == "127.0.0.1:0" {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("daemon did not start listening")
		}
		time.Sleep(2 * time.Millisecond)
	}
	stop := func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Run did not return after cancel")
		}
	}
	return d, "http://" + d.Addr(), stop
}

func getJSON(t *testing.T, url, token string, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestDaemonRunReturnsOnCancelledContext(t *testing.T) {
	d := New(Options{Addr: "127.0.0.1:0", Token: "token", Version: "test-version"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestDaemonRunServesAndNudges(t *testing.T) {
	nudger := &countingNudger{sent: make(chan struct{}, 1)}
	sup := watchdog.NewSupervisor(watchdog.Config{
		Enabled:      true,
		Timeout:      40 * time.Millisecond,
		NudgeMessage: "continue",
	}, nudger)
	source := &channelSource{ch: make(chan events.Event, 8)}
	hub := NewHub(sup.Snapshot, logging.Nop())

	_, baseURL, stop := startDaemon(t, Options{
		Token:        "secret",
		Version:      "test-version",
		Supervisor:   sup,
		Source:       source,
		Journal:      &stubJournal{},
		Hub:          hub,
		ReconnectMin: time.Millisecond,
		ReconnectMax: 5 * time.Millisecond,
	})
	defer stop()

	var health HealthResponse
	if status := getJSON(t, baseURL+"/health", "", &health); status != http.StatusOK || !health.OK {
		t.Fatalf("unexpected health: %d %#v", status, health)
	}
	if status := getJSON(t, baseURL+"/v1/watchdog", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer secret")
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(baseURL, "http")+"/v1/watchdog/stream", header)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first types.WatchdogStreamMessage
	if err := conn.ReadJSON(&first); err != nil || first.Kind != types.WatchdogStreamSnapshot {
		t.Fatalf("expected initial snapshot, got %#v %v", first, err)
	}

	source.ch <- events.SessionCreated{SessionID: "ses_1"}
	source.ch <- events.SessionStatus{SessionID: "ses_1", Status: events.StatusRunning}

	select {
	case <-nudger.sent:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a nudge after silence")
	}

	var snapshot types.WatchdogSnapshot
	deadline := time.Now().Add(2 * time.Second)
	for snapshot.Nudges == 0 && time.Now().Before(deadline) {
		getJSON(t, baseURL+"/v1/watchdog", "secret", &snapshot)
		time.Sleep(2 * time.Millisecond)
	}
	if snapshot.Nudges != 1 || snapshot.TrackedSessionID != "ses_1" {
		t.Fatalf("unexpected snapshot after nudge: %#v", snapshot)
	}

	sawArmed := false
	for !sawArmed {
		var msg types.WatchdogStreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read stream: %v", err)
		}
		sawArmed = msg.Snapshot != nil && msg.Snapshot.Armed
	}
}

func TestDaemonRunSkipsPumpWhenDisabled(t *testing.T) {
	sup := watchdog.NewSupervisor(watchdog.Config{Enabled: false}, &countingNudger{sent: make(chan struct{}, 1)})
	source := &channelSource{ch: make(chan events.Event)}

	_, baseURL, stop := startDaemon(t, Options{Token: "secret", Supervisor: sup, Source: source})

	// An unbuffered send would block if anything were reading the stream.
	select {
	case source.ch <- events.SessionIdle{}:
		t.Fatalf("expected no event pump while disabled")
	case <-time.After(20 * time.Millisecond):
	}

	var snapshot types.WatchdogSnapshot
	if status := getJSON(t, baseURL+"/v1/watchdog", "secret", &snapshot); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if snapshot.Enabled {
		t.Fatalf("expected disabled snapshot")
	}
	stop()
}
