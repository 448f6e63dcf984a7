package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/disagreement-ai/mediation/backend/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxInboundSize = 4 * 1024
)

// ErrClientClosed is returned when writing to a closed client.
var ErrClientClosed = errors.New("client closed")

// ErrClientSlow is returned when a client's outbound queue is full.
var ErrClientSlow = errors.New("client send queue full")

// Client is one subscriber joined to a session room: a WebSocket connection, or a
// stream consumer reading Frames directly when conn is nil.
type Client struct {
	ID          string
	SessionID   string
	ConnectedAt time.Time

	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	log  *logging.Logger
}

func newClient(conn *websocket.Conn, sessionID string, queueSize int, log *logging.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		ID:          id,
		SessionID:   sessionID,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, queueSize),
		done:        make(chan struct{}),
		log:         log.With("connId", id),
	}
}

// enqueue hands a frame to the writer without blocking.
func (c *Client) enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrClientSlow
	}
}

// Frames yields encoded frames in publish order.
func (c *Client) Frames() <-chan []byte {
	return c.send
}

// Done is closed once the client has been disconnected.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close stops the writer and closes the socket. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// writeLoop is the only goroutine that writes to the socket.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains inbound frames until the peer goes away. Clients only listen; anything
// they send is discarded.
func (c *Client) readLoop() {
	defer c.Close()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}
