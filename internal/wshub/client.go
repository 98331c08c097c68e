package wshub

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8 << 10
)

type role int

const (
	roleNone role = iota
	rolePlayer
	roleViewer
)

type binding struct {
	room string
	id   string
	role role
}

// Client represents a single WebSocket connection. Conn may be nil in tests
// that drive the hub through Dispatch.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	bnd binding
}

func NewClient(conn *websocket.Conn) *Client {
	if conn != nil {
		conn.SetReadLimit(maxMessageSize)
	}
	return &Client{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// WritePump reads from the Send channel and writes to the WebSocket connection.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.Send:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.Conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.Conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// trySend queues data without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *Client) trySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) binding() binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bnd
}

func (c *Client) bind(b binding) {
	c.mu.Lock()
	c.bnd = b
	c.mu.Unlock()
}

// unbindIf clears the binding only if it still matches b.
func (c *Client) unbindIf(b binding) {
	c.mu.Lock()
	if c.bnd == b {
		c.bnd = binding{}
	}
	c.mu.Unlock()
}
