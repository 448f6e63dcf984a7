package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/disagreement-ai/mediation/backend/internal/logging"
)

// DefaultQueueSize is the per-client outbound buffer.
const DefaultQueueSize = 64

// Hub groups clients into rooms keyed by session id and publishes events to them.
type Hub struct {
	mu        sync.Mutex
	rooms     map[string]map[string]*Client
	seq       map[string]int64
	queueSize int
	upgrader  websocket.Upgrader
	log       *logging.Logger
}

// Option customizes a Hub.
type Option func(*Hub)

// WithQueueSize sets the per-client outbound buffer.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger, opts ...Option) *Hub {
	if log == nil {
		log = logging.Nop()
	}
	h := &Hub{
		rooms:     make(map[string]map[string]*Client),
		seq:       make(map[string]int64),
		queueSize: DefaultQueueSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.Sub("realtime"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish delivers an event to every client in the session's room. Events published in
// sequence reach each client in that order. The room's sequence restarts once it empties. Slow clients are disconnected rather than
// allowed to block the publisher.
func (h *Hub) Publish(_ context.Context, sessionID, event string, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	seq := h.seq[sessionID] + 1
	frame, err := NewEvent(sessionID, event, payload, seq)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", event, err)
	}

	room := h.rooms[sessionID]
	if len(room) == 0 {
		return nil
	}
	h.seq[sessionID] = seq

	for id, c := range room {
		if err := c.enqueue(data); err != nil {
			h.log.Warn().Err(err).Str("session", sessionID).Str("connId", id).Str("event", event).Msg("dropping client")
			h.removeLocked(c)
			c.Close()
		}
	}
	return nil
}

// ServeWS upgrades the request and keeps the connection in the session's room until the
// peer disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	c := newClient(conn, sessionID, h.queueSize, h.log)
	h.add(c)
	defer h.remove(c)

	hello, err := json.Marshal(Frame{Type: FrameTypeConnected, SessionID: sessionID, Timestamp: time.Now().UnixMilli()})
	if err == nil {
		_ = c.enqueue(hello)
	}

	go c.writeLoop()
	c.readLoop()
	return nil
}

// Subscribe joins a stream consumer to the session's room. The caller reads
// Frames until Done and must call Unsubscribe.
func (h *Hub) Subscribe(sessionID string) *Client {
	c := newClient(nil, sessionID, h.queueSize, h.log)
	h.add(c)
	return c
}

// Unsubscribe removes a stream consumer and closes it.
func (h *Hub) Unsubscribe(c *Client) {
	h.remove(c)
	c.Close()
}

// Count returns how many clients are in a session's room.
func (h *Hub) Count(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[sessionID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID, room := range h.rooms {
		for _, c := range room {
			c.Close()
		}
		delete(h.rooms, sessionID)
		delete(h.seq, sessionID)
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.SessionID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[c.SessionID] = room
	}
	room[c.ID] = c
	h.log.Info().Str("session", c.SessionID).Str("connId", c.ID).Int("clients", len(room)).Msg("client joined")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.removeLocked(c) {
		h.log.Info().Str("session", c.SessionID).Str("connId", c.ID).Msg("client left")
	}
}

func (h *Hub) removeLocked(c *Client) bool {
	room, ok := h.rooms[c.SessionID]
	if !ok {
		return false
	}
	if _, ok := room[c.ID]; !ok {
		return false
	}
	delete(room, c.ID)
	if len(room) == 0 {
		delete(h.rooms, c.SessionID)
		delete(h.seq, c.SessionID)
	}
	return true
}
