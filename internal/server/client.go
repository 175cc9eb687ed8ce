package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gonotify/internal/notify"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

// Client is one notification socket. It implements notify.Channel: Send
// queues a message for the write pump without blocking and Close ends the
// pump, which says goodbye to the peer and closes the connection.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	identity       string
	addr           string
	maxMessageSize int64

	mu     sync.RWMutex
	closed bool
}

var _ notify.Channel = (*Client)(nil)

// NewClient wraps an upgraded connection for identity.
func NewClient(conn *websocket.Conn, identity, addr string, maxMessageSize int64) *Client {
	return &Client{
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		identity:       identity,
		addr:           addr,
		maxMessageSize: maxMessageSize,
	}
}

// Send queues msg. It fails with notify.ErrChannelWrite when the client is
// closed or its buffer is full, which gets a slow peer evicted.
func (c *Client) Send(msg []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("%w: client %s is closed", notify.ErrChannelWrite, c.addr)
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return fmt.Errorf("%w: send buffer full for %s", notify.ErrChannelWrite, c.addr)
	}
}

// Close stops the client. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	c.conn.SetReadLimit(c.maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("Error setting initial read deadline", "addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			slog.Warn("Error setting read deadline in pong handler", "addr", c.addr, "error", err)
		}
		return nil
	})
}

// readPump blocks until the peer goes away. The socket is push-only, so
// inbound frames are read and dropped. Ordinary disconnects return nil.
func (c *Client) readPump(_ context.Context) error {
	c.setupReadConnection()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return c.handleReadError(err)
		}
	}
}

// handleReadError logs the reason the read loop ended and returns it when
// it was not an ordinary disconnect.
func (c *Client) handleReadError(err error) error {
	if errors.Is(err, websocket.ErrReadLimit) {
		slog.Warn("Message exceeded maximum size", "addr", c.addr, "identity", c.identity, "limit", c.maxMessageSize)
		return err
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		slog.Info("Client disconnected", "addr", c.addr, "identity", c.identity, "reason", err)
		return nil
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		slog.Info("Client connection closed", "addr", c.addr, "identity", c.identity, "reason", err)
		return nil
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		slog.Warn("Unexpected WebSocket close", "addr", c.addr, "identity", c.identity, "error", err)
		return err
	}

	slog.Warn("WebSocket read error", "addr", c.addr, "identity", c.identity, "error", err)
	return err
}

// writePump drains the send queue and pings the peer until Close is called
// or a write fails, then closes the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		slog.Debug("Error closing connection", "addr", c.addr, "error", err)
	}
}

// handleMessage writes one queued message, or the close frame once the
// queue is closed, and returns false if the pump should stop.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Warn("Error setting write deadline", "addr", c.addr, "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			slog.Warn("Error writing notification", "addr", c.addr, "identity", c.identity, "error", err)
		}
		return false
	}
	return true
}

func (c *Client) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		slog.Debug("Error writing close message", "addr", c.addr, "error", err)
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Warn("Error setting write deadline for ping", "addr", c.addr, "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		slog.Warn("Error writing ping message", "addr", c.addr, "error", err)
		return false
	}
	return true
}
