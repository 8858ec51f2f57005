package websocket

import (
	"context"
	"sync"
	"time"

	"ai-intent-chat-be/internal/metric"
	"ai-intent-chat-be/internal/pkg/logger"
	"ai-intent-chat-be/pkg/chatbot"
	"ai-intent-chat-be/pkg/store"

	"github.com/gofiber/websocket/v2"
)

const (
	clientModule = "ManagedClient"

	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is a middleman between a library-managed websocket connection and
// the pipeline.
type Client struct {
	hub     *Hub
	chat    Conversation
	logger  logger.ILogger
	metrics *metric.Metrics
	opts    Options

	// The websocket connection.
	conn *websocket.Conn

	id      string
	session *store.Session

	ctx    context.Context
	cancel context.CancelFunc

	// Buffered channel of outbound messages.
	send       chan []byte
	mu         sync.Mutex
	closed     bool
	closeCode  int
	closeText  string
	inbox      chan []byte
	writerDone chan struct{}
}

func (c *Client) ID() string { return c.id }

func (c *Client) SessionID() string { return c.session.ID }

func (c *Client) Send(ev chatbot.Event) bool {
	data, err := encodeEvent(ev)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		c.metrics.RecordEvent(TransportManaged, string(ev.Type))
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) Close(code uint16, reason string) {
	c.closeSend(int(code), reason)
	// Unblock readPump; teardown happens there.
	_ = c.conn.SetReadDeadline(time.Now())
}

// closeSend stops accepting events. writePump flushes what is queued and then
// sends the close message.
func (c *Client) closeSend(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeText = reason
	close(c.send)
}

// readPump pumps messages from the websocket connection to the processor.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		close(c.inbox)
	}()

	if c.opts.MaxMessageBytes > 0 {
		c.conn.SetReadLimit(int64(c.opts.MaxMessageBytes))
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn(clientModule, "Unexpected close", map[string]interface{}{
					"connection_id": c.id,
					"error":         err.Error(),
				})
			}
			return
		}
		select {
		case c.inbox <- message:
		case <-c.ctx.Done():
			return
		}
	}
}

// processPump runs one pipeline at a time, in arrival order.
func (c *Client) processPump(done chan struct{}) {
	defer close(done)

	for payload := range c.inbox {
		if c.ctx.Err() != nil {
			continue
		}
		for ev := range c.chat.Converse(c.ctx, c.session, payload) {
			if !c.Send(ev) || !chatbot.Pace(c.ctx, c.opts.EventDelay) {
				break
			}
		}
	}
}

// writePump pumps queued events to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.writerDone)
	}()

	failed := false
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				if !failed {
					_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
					_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(c.closeCode, c.closeText))
				}
				return
			}
			if failed {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				failed = true
				c.cancel()
			}
		case <-ticker.C:
			if failed {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				failed = true
				c.cancel()
			}
		}
	}
}
