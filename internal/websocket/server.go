package websocket

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"ai-intent-chat-be/internal/metric"
	"ai-intent-chat-be/internal/pkg/logger"
	"ai-intent-chat-be/pkg/chatbot"
	"ai-intent-chat-be/pkg/wsframe"
)

const serverModule = "RealtimeServer"

// ShutdownText is broadcast to open connections before they are closed.
const ShutdownText = "Server is shutting down"

type Options struct {
	MaxHandshakeBytes int
	MaxMessageBytes   int
	// EventDelay paces events of one pipeline run on a connection.
	EventDelay time.Duration
	WriteWait  time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxHandshakeBytes: 8 << 10,
		MaxMessageBytes:   1 << 20,
		EventDelay:        100 * time.Millisecond,
		WriteWait:         10 * time.Second,
	}
}

// Server accepts raw TCP connections and runs the handshake and framing
// itself.
type Server struct {
	chat    Conversation
	hub     *Hub
	logger  logger.ILogger
	metrics *metric.Metrics
	opts    Options

	mu       sync.Mutex
	listener net.Listener
	conns    sync.WaitGroup
}

func NewServer(chat Conversation, hub *Hub, log logger.ILogger, metrics *metric.Metrics, opts Options) *Server {
	if opts.WriteWait <= 0 {
		opts.WriteWait = DefaultOptions().WriteWait
	}
	return &Server{
		chat:    chat,
		hub:     hub,
		logger:  log,
		metrics: metrics,
		opts:    opts,
	}
}

// ListenAndServe listens on addr and serves until ctx is done or Shutdown is
// called.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln. It returns nil after a shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.logger.Info(serverModule, "Realtime server listening", map[string]interface{}{"addr": ln.Addr().String()})

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		c := newRawConn(context.WithoutCancel(ctx), s, nc)
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			c.serve()
		}()
	}
}

// Addr returns the listener address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting, announces the shutdown to every open connection,
// closes them with 1001 and waits until their sessions are saved or ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()

	notified := s.hub.Broadcast(chatbot.Status(ShutdownText))
	s.hub.CloseAll(wsframe.CloseGoingAway, "server shutdown")
	s.logger.Info(serverModule, "Realtime server shutting down", map[string]interface{}{"connections": notified})

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
