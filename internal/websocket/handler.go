package websocket

import (
	"context"

	"ai-intent-chat-be/internal/metric"
	"ai-intent-chat-be/internal/pkg/logger"
	"ai-intent-chat-be/pkg/wsframe"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs runs a library-managed websocket connection until it closes. The
// session is chosen by the sessionId query parameter.
func ServeWs(hub *Hub, chat Conversation, c *websocket.Conn, log logger.ILogger, metrics *metric.Metrics, opts Options) {
	if opts.WriteWait <= 0 {
		opts.WriteWait = DefaultOptions().WriteWait
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:        hub,
		chat:       chat,
		logger:     log,
		metrics:    metrics,
		opts:       opts,
		conn:       c,
		id:         uuid.NewString(),
		ctx:        ctx,
		cancel:     cancel,
		send:       make(chan []byte, outboxSize),
		inbox:      make(chan []byte, inboxSize),
		writerDone: make(chan struct{}),
	}
	client.session = chat.OpenSession(ctx, c.Query("sessionId"))

	hub.Register(client)
	metrics.ConnectionOpened(TransportManaged)
	log.Info(clientModule, "Managed connection opened", map[string]interface{}{
		"connection_id": client.id,
		"session_id":    client.session.ID,
	})

	go client.writePump()
	client.Send(welcome(client.session))

	processorDone := make(chan struct{})
	go client.processPump(processorDone)

	// Run readPump in the handler goroutine; fiber closes the connection
	// when the handler returns.
	client.readPump()

	<-processorDone
	chat.CloseSession(ctx, client.session)
	hub.Unregister(client)
	metrics.ConnectionClosed(TransportManaged)

	client.closeSend(int(wsframe.CloseNormal), "")
	<-client.writerDone

	log.Info(clientModule, "Managed connection closed", map[string]interface{}{
		"connection_id": client.id,
		"session_id":    client.session.ID,
	})
}

// UpgradeRequired rejects plain HTTP requests on the websocket route.
func UpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// NewManagedHandler returns the fiber handler of the managed websocket route.
func NewManagedHandler(hub *Hub, chat Conversation, log logger.ILogger, metrics *metric.Metrics, opts Options) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		ServeWs(hub, chat, c, log, metrics, opts)
	}, websocket.Config{ReadBufferSize: 4096, WriteBufferSize: 4096})
}
