package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	// maxDropped consecutive drops cut a client off. The browser reconnects
	// and reloads its inbox instead of silently missing notifications.
	maxDropped = 8
)

// Client is one browser tab of a signed-in user.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	userID int64
	send   chan []byte

	dropped  atomic.Int32
	slow     chan struct{}
	slowOnce sync.Once
}

func NewClient(hub *Hub, conn *ws.Conn, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		slow:   make(chan struct{}),
	}
}

// offer queues data without blocking and reports whether it was queued.
func (c *Client) offer(data []byte) bool {
	select {
	case c.send <- data:
		c.dropped.Store(0)
		return true
	default:
		if c.dropped.Add(1) >= maxDropped {
			c.slowOnce.Do(func() { close(c.slow) })
		}
		return false
	}
}

// Run registers the client and writes until the connection ends. Browsers
// never send data frames, so reads are left to CloseRead, which answers
// control frames and cancels ctx once the peer goes away.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	c.writePump(c.conn.CloseRead(ctx))
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-c.slow:
			c.conn.Close(ws.StatusTryAgainLater, "falling behind, reconnect")
			return
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
