package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"overseer/internal/types"
)

const (
	streamReconnectBase = time.Second
	streamReconnectMax  = 30 * time.Second
	streamPongTimeout   = 90 * time.Second
	streamDialTimeout   = 5 * time.Second
)

// StreamConnectedMsg is sent when the watchdog stream connects.
type StreamConnectedMsg struct{}

// StreamDisconnectedMsg is sent when the connection drops.
type StreamDisconnectedMsg struct{ Err error }

type SnapshotMsg struct{ Snapshot types.WatchdogSnapshot }

type NudgeMsg struct{ Nudge types.NudgeRecord }

// WatchdogStream follows /v1/watchdog/stream. Listen dials (retrying with
// backoff) and ReadLoop returns one message per call, so both slot straight
// into a Bubble Tea update loop.
type WatchdogStream struct {
	url   string
	token string

	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *Client) WatchdogStream() (*WatchdogStream, error) {
	if err := c.ensureToken(); err != nil {
		return nil, err
	}
	return &WatchdogStream{
		url:   websocketURL(c.baseURL) + "/v1/watchdog/stream",
		token: c.token,
	}, nil
}

func websocketURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	default:
		return baseURL
	}
}

// Listen returns a command that connects, retrying until ctx is done.
func (s *WatchdogStream) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := streamReconnectBase
		for {
			if err := s.connect(ctx); err == nil {
				return StreamConnectedMsg{}
			} else if ctx.Err() != nil {
				return StreamDisconnectedMsg{Err: ctx.Err()}
			}
			select {
			case <-ctx.Done():
				return StreamDisconnectedMsg{Err: ctx.Err()}
			case <-time.After(delay):
			}
			delay = min(delay*2, streamReconnectMax)
		}
	}
}

func (s *WatchdogStream) connect(ctx context.Context) error {
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: streamDialTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// ReadLoop returns a command that blocks until the next snapshot or nudge.
// It should be started after StreamConnectedMsg and again after every
// message it yields.
func (s *WatchdogStream) ReadLoop() tea.Cmd {
	return func() tea.Msg {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return StreamDisconnectedMsg{Err: errors.New("not connected")}
		}

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
		})
		for {
			_ = conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
			_, data, err := conn.ReadMessage()
			if err != nil {
				s.mu.Lock()
				if s.conn == conn {
					s.conn = nil
				}
				s.mu.Unlock()
				_ = conn.Close()
				return StreamDisconnectedMsg{Err: err}
			}
			var msg types.WatchdogStreamMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			switch {
			case msg.Kind == types.WatchdogStreamSnapshot && msg.Snapshot != nil:
				return SnapshotMsg{Snapshot: *msg.Snapshot}
			case msg.Kind == types.WatchdogStreamNudge && msg.Nudge != nil:
				return NudgeMsg{Nudge: *msg.Nudge}
			}
		}
	}
}

func (s *WatchdogStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
