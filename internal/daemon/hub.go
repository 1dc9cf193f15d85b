package daemon

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"overseer/internal/logging"
	"overseer/internal/types"
)

const (
	hubSendBuffer   = 64
	hubWriteTimeout = 5 * time.Second
	hubPingInterval = 30 * time.Second
)

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newHubClient(conn *websocket.Conn) *hubClient {
	c := &hubClient{
		conn: conn,
		send: make(chan []byte, hubSendBuffer),
	}
	go c.writePump()
	return c
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(hubPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *hubClient) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans watchdog snapshots and nudge records out to websocket
// subscribers. New subscribers receive the current snapshot first; clients
// that cannot keep up are disconnected.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*hubClient]struct{}
	closed   bool
	snapshot func() types.WatchdogSnapshot
	logger   logging.Logger
	upgrader websocket.Upgrader
}

func NewHub(snapshot func() types.WatchdogSnapshot, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hub{
		clients:  map[*hubClient]struct{}{},
		snapshot: snapshot,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Only the CLI connects, with a bearer token; there is no browser
			// origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws_upgrade_failed", logging.F("error", err))
		return
	}
	c := h.add(conn)
	if c == nil {
		_ = conn.Close()
		return
	}
	h.logger.Debug("ws_client_connected", logging.F("remote", r.RemoteAddr))

	go func() {
		defer func() {
			h.remove(c)
			h.logger.Debug("ws_client_disconnected", logging.F("remote", r.RemoteAddr))
		}()
		conn.SetReadLimit(4096)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) add(conn *websocket.Conn) *hubClient {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	c := newHubClient(conn)
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if h.snapshot != nil {
		snapshot := h.snapshot()
		if data, err := json.Marshal(types.WatchdogStreamMessage{Kind: types.WatchdogStreamSnapshot, Snapshot: &snapshot}); err == nil {
			h.deliver(c, data)
		}
	}
	return c
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *Hub) PublishSnapshot(snapshot types.WatchdogSnapshot) {
	h.broadcast(types.WatchdogStreamMessage{Kind: types.WatchdogStreamSnapshot, Snapshot: &snapshot})
}

func (h *Hub) PublishNudge(record types.NudgeRecord) {
	h.broadcast(types.WatchdogStreamMessage{Kind: types.WatchdogStreamNudge, Nudge: &record})
}

func (h *Hub) broadcast(msg types.WatchdogStreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("ws_marshal_failed", logging.F("error", err))
		return
	}
	h.mu.RLock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.deliver(c, data)
	}
}

func (h *Hub) deliver(c *hubClient, data []byte) {
	h.mu.RLock()
	_, live := h.clients[c]
	if live {
		select {
		case c.send <- data:
			h.mu.RUnlock()
			return
		default:
		}
	}
	h.mu.RUnlock()
	if live {
		h.logger.Warn("ws_client_too_slow")
		h.remove(c)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
