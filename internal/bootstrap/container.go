package bootstrap

import (
	"context"
	"fmt"
	"log"

	"ai-intent-chat-be/internal/config"
	"ai-intent-chat-be/internal/controller"
	"ai-intent-chat-be/internal/metric"
	"ai-intent-chat-be/internal/pkg/logger"
	"ai-intent-chat-be/internal/repository/contract"
	"ai-intent-chat-be/internal/repository/file"
	"ai-intent-chat-be/internal/repository/memory"
	redisRepo "ai-intent-chat-be/internal/repository/redis"
	"ai-intent-chat-be/internal/service"
	"ai-intent-chat-be/internal/websocket"
	"ai-intent-chat-be/pkg/ai/dataset"
	"ai-intent-chat-be/pkg/ai/intent"
	"ai-intent-chat-be/pkg/ai/pipeline"
	"ai-intent-chat-be/pkg/chatbot"
	pktNats "ai-intent-chat-be/pkg/nats"
	"ai-intent-chat-be/pkg/unclassified"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	Logger         logger.ILogger
	RealtimeLogger logger.ILogger
	Metrics        *metric.Metrics

	// Controllers
	ChatController controller.IChatController

	// Realtime
	WebSocketHub   *websocket.Hub
	RealtimeServer *websocket.Server

	// Background Services (nil when NATS is not configured)
	UnclassifiedRelay service.IUnclassifiedRelay

	closers []func()
}

// NewContainer wires every component. Only dataset failures are returned;
// optional infrastructure that cannot be reached is logged and skipped.
func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	rtLogger := logger.NewIsolatedLogger(cfg.App.RealtimeLogFilePath)
	metrics := metric.NewMetrics()
	c := &Container{Logger: sysLogger, RealtimeLogger: rtLogger, Metrics: metrics}

	// 2. Handlers and dataset
	registry := chatbot.NewDefaultRegistry(chatbot.Options{
		WordDelay:        cfg.Stream.HandlerWordDelay,
		ClockLookupDelay: chatbot.DefaultOptions().ClockLookupDelay,
		AssistantName:    cfg.Ai.AssistantName,
	})
	ds, err := dataset.NewStore(cfg.Ai.DatasetDir, cfg.Ai.DefaultLocale).Load(cfg.Ai.Locale, registry.Aliases())
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	sysLogger.Info("Bootstrap", "Dataset loaded", map[string]interface{}{
		"locale":  ds.Locale,
		"intents": ds.Intents(),
	})

	// 3. Event Bus
	var sink unclassified.Sink = unclassified.NewFileLog(cfg.Ai.UnclassifiedDir)
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
			sink = unclassified.MultiSink{sink, unclassified.NewBusSink(pubSub, unclassified.Topic)}
			c.UnclassifiedRelay = service.NewUnclassifiedRelay(pubSub, unclassified.Topic, natsPub, sysLogger, metrics)
			c.closers = append(c.closers, func() { _ = pubSub.Close() }, natsPub.Close)
		}
	}

	engine := intent.NewEngine(ds, sink, intent.WithErrorHandler(func(err error) {
		sysLogger.Warn("IntentEngine", "Failed to record unclassified message", map[string]interface{}{"error": err.Error()})
	}))

	// 4. Sessions
	sessions := c.newSessionRepository(cfg)

	// 5. Services
	p := pipeline.NewStreamPipeline(engine, registry, sessions, sysLogger,
		pipeline.WithMetrics(metrics),
		pipeline.WithDefaultTimezone(cfg.Session.DefaultTimezone),
	)
	chatService := service.NewChatService(p, sessions, sysLogger)

	// 6. Realtime
	realtime := websocket.Options{
		MaxHandshakeBytes: cfg.Stream.HandshakeMaxBytes,
		MaxMessageBytes:   cfg.Stream.MaxMessageBytes,
		EventDelay:        cfg.Stream.WSEventDelay,
		WriteWait:         websocket.DefaultOptions().WriteWait,
	}
	c.WebSocketHub = websocket.NewHub(rtLogger)
	c.RealtimeServer = websocket.NewServer(chatService, c.WebSocketHub, rtLogger, metrics, realtime)

	// 7. Controllers
	c.ChatController = controller.NewChatController(chatService, c.WebSocketHub, rtLogger, metrics, controller.ChatControllerConfig{
		SSEEventDelay: cfg.Stream.SSEEventDelay,
		Realtime:      realtime,
	})

	return c, nil
}

func (c *Container) newSessionRepository(cfg *config.Config) contract.SessionRepository {
	switch cfg.Session.Backend {
	case "memory":
		return memory.NewSessionRepository(cfg.Session.CacheTTL)
	case "redis":
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		return memory.NewCachedSessionRepository(redisRepo.NewSessionRepository(rdb, 0), cfg.Session.CacheTTL)
	default:
		return memory.NewCachedSessionRepository(file.NewSessionRepository(cfg.Session.Dir), cfg.Session.CacheTTL)
	}
}

// Close releases infrastructure clients in reverse order and flushes logs.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
	_ = c.RealtimeLogger.Sync()
}
