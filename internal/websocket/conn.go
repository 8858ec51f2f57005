package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net"
	"os"
	"sync"
	"time"

	"ai-intent-chat-be/pkg/apperror"
	"ai-intent-chat-be/pkg/chatbot"
	"ai-intent-chat-be/pkg/store"
	"ai-intent-chat-be/pkg/wsframe"

	"github.com/google/uuid"
)

const (
	TransportRaw     = "raw"
	TransportManaged = "managed"

	// WelcomeText is the text of the first event on every connection.
	WelcomeText = "Connected!"

	readBufferSize = 4096
	outboxSize     = 64
	inboxSize      = 16
)

// Conversation is the application side of a connection.
type Conversation interface {
	OpenSession(ctx context.Context, id string) *store.Session
	Converse(ctx context.Context, sess *store.Session, payload []byte) iter.Seq[chatbot.Event]
	CloseSession(ctx context.Context, sess *store.Session)
}

func welcome(sess *store.Session) chatbot.Event {
	return chatbot.Welcome(WelcomeText, map[string]string{"sessionId": sess.ID})
}

func encodeEvent(ev chatbot.Event) ([]byte, error) {
	return json.Marshal(ev)
}

// rawConn is one connection of the hand-framed server. The reader goroutine
// owns the machine, the processor owns the session, the writer owns the
// socket's write side.
type rawConn struct {
	id     string
	server *Server
	nc     net.Conn

	machineMu sync.Mutex
	machine   *Machine

	session *store.Session

	ctx    context.Context
	cancel context.CancelFunc

	outMu  sync.Mutex
	out    chan []byte
	closed bool

	inbox chan []byte
}

func newRawConn(ctx context.Context, s *Server, nc net.Conn) *rawConn {
	c := &rawConn{
		id:      uuid.NewString(),
		server:  s,
		nc:      nc,
		machine: NewMachine(s.opts.MaxHandshakeBytes, s.opts.MaxMessageBytes),
		out:     make(chan []byte, outboxSize),
		inbox:   make(chan []byte, inboxSize),
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	return c
}

func (c *rawConn) ID() string { return c.id }

func (c *rawConn) SessionID() string {
	if c.session == nil {
		return ""
	}
	return c.session.ID
}

func (c *rawConn) Send(ev chatbot.Event) bool {
	payload, err := encodeEvent(ev)
	if err != nil {
		c.server.logger.Error(serverModule, "Failed to encode event", map[string]interface{}{
			"connection_id": c.id,
			"error":         err.Error(),
		})
		return false
	}

	// Data frames never follow a close frame.
	c.machineMu.Lock()
	ok := c.machine.State() == StateOpen && c.enqueue(wsframe.Text(payload))
	c.machineMu.Unlock()

	if ok {
		c.server.metrics.RecordEvent(TransportRaw, string(ev.Type))
	}
	return ok
}

func (c *rawConn) Close(code uint16, reason string) {
	c.machineMu.Lock()
	if frame := c.machine.Shutdown(code, reason); frame != nil {
		c.enqueue(frame)
	}
	c.machineMu.Unlock()

	// Unblock the reader; teardown happens there.
	_ = c.nc.SetReadDeadline(time.Now())
}

func (c *rawConn) enqueue(b []byte) bool {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if c.closed {
		return false
	}
	c.out <- b
	return true
}

func (c *rawConn) closeOutbox() {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

// serve runs the connection until the peer or the server closes it.
func (c *rawConn) serve() {
	log := c.server.logger
	writerDone := make(chan struct{})
	go c.writeLoop(writerDone)

	var processorDone chan struct{}
	opened := false

	defer func() {
		c.cancel()
		close(c.inbox)
		if processorDone != nil {
			<-processorDone
		}
		if opened {
			c.server.chat.CloseSession(c.ctx, c.session)
			c.server.hub.Unregister(c)
			c.server.metrics.ConnectionClosed(TransportRaw)
		}

		c.machineMu.Lock()
		c.machine.Release()
		c.machineMu.Unlock()

		c.closeOutbox()
		<-writerDone
		_ = c.nc.Close()

		log.Debug(serverModule, "Connection closed", map[string]interface{}{
			"connection_id": c.id,
			"session_id":    c.SessionID(),
		})
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			c.machineMu.Lock()
			step := c.machine.Feed(buf[:n])
			for _, b := range step.Write {
				c.enqueue(b)
			}
			c.machineMu.Unlock()

			if step.Upgraded != nil {
				opened = true
				c.session = c.server.chat.OpenSession(c.ctx, step.Upgraded.URL.Query().Get("sessionId"))
				c.server.hub.Register(c)
				c.server.metrics.ConnectionOpened(TransportRaw)
				log.Info(serverModule, "Handshake complete", map[string]interface{}{
					"connection_id": c.id,
					"session_id":    c.session.ID,
					"remote_addr":   c.nc.RemoteAddr().String(),
				})
				c.Send(welcome(c.session))

				processorDone = make(chan struct{})
				go c.processLoop(processorDone)
			}

			for _, msg := range step.Messages {
				select {
				case c.inbox <- msg:
				case <-c.ctx.Done():
				}
			}

			if step.Close {
				c.logStepError(step.Err)
				return
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, os.ErrDeadlineExceeded) {
				log.Warn(serverModule, "Read failed", map[string]interface{}{
					"connection_id": c.id,
					"error":         err.Error(),
				})
			}
			return
		}
	}
}

func (c *rawConn) logStepError(err error) {
	if err == nil {
		return
	}
	details := map[string]interface{}{
		"connection_id": c.id,
		"remote_addr":   c.nc.RemoteAddr().String(),
		"error":         err.Error(),
	}
	if errors.Is(err, apperror.ErrHandshakeRejected) {
		c.server.metrics.RecordHandshakeRejection()
		c.server.logger.Warn(serverModule, "Handshake rejected", details)
		return
	}
	c.server.logger.Warn(serverModule, "Protocol error, closing connection", details)
}

// processLoop runs one pipeline at a time, in arrival order.
func (c *rawConn) processLoop(done chan struct{}) {
	defer close(done)

	for payload := range c.inbox {
		if c.ctx.Err() != nil {
			continue
		}
		for ev := range c.server.chat.Converse(c.ctx, c.session, payload) {
			if !c.Send(ev) {
				break
			}
			if !chatbot.Pace(c.ctx, c.server.opts.EventDelay) {
				break
			}
		}
	}
}

func (c *rawConn) writeLoop(done chan struct{}) {
	defer close(done)

	failed := false
	for b := range c.out {
		if failed {
			continue
		}
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.server.opts.WriteWait))
		if _, err := c.nc.Write(b); err != nil {
			failed = true
			c.server.logger.Warn(serverModule, "Write failed", map[string]interface{}{
				"connection_id": c.id,
				"error":         err.Error(),
			})
			c.cancel()
			_ = c.nc.SetReadDeadline(time.Now())
		}
	}
}
