package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"ai-intent-chat-be/internal/dto"
	"ai-intent-chat-be/internal/metric"
	"ai-intent-chat-be/internal/pkg/logger"
	"ai-intent-chat-be/internal/pkg/serverutils"
	"ai-intent-chat-be/internal/service"
	"ai-intent-chat-be/internal/websocket"
	"ai-intent-chat-be/pkg/chatbot"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const (
	chatModule = "ChatController"

	TransportSSE = "sse"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Chat(ctx *fiber.Ctx) error
	ListIntents(ctx *fiber.Ctx) error
	ShowSession(ctx *fiber.Ctx) error
}

type ChatControllerConfig struct {
	// SSEEventDelay paces events on the server-push route.
	SSEEventDelay time.Duration
	Realtime      websocket.Options
}

type chatController struct {
	service service.IChatService
	hub     *websocket.Hub
	logger  logger.ILogger
	metrics *metric.Metrics
	cfg     ChatControllerConfig
}

func NewChatController(
	service service.IChatService,
	hub *websocket.Hub,
	log logger.ILogger,
	metrics *metric.Metrics,
	cfg ChatControllerConfig,
) IChatController {
	return &chatController{service: service, hub: hub, logger: log, metrics: metrics, cfg: cfg}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/ai")
	h.Get("/chat", c.Chat)
	h.Post("/chat", c.Chat)
	h.Get("/ws", websocket.UpgradeRequired, websocket.NewManagedHandler(c.hub, c.service, c.logger, c.metrics, c.cfg.Realtime))
	h.Get("/intents", c.ListIntents)
	h.Get("/sessions/:id", c.ShowSession)
}

// Chat streams one pipeline run as server-sent events.
func (c *chatController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if ctx.Method() == fiber.MethodGet {
		if err := ctx.QueryParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	} else if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	// The stream outlives the handler, so it cannot use the request context.
	streamCtx, cancel := context.WithCancel(context.Background())
	sess, events := c.service.Chat(streamCtx, &req)

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")
	ctx.Set("X-Session-Id", sess.ID)

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		c.stream(streamCtx, cancel, w, sess.ID, events)
	}))
	return nil
}

func (c *chatController) stream(ctx context.Context, cancel context.CancelFunc, w *bufio.Writer, sessionID string, events iter.Seq[chatbot.Event]) {
	for ev := range events {
		if err := WriteEvent(w, ev); err != nil {
			c.logger.Warn(chatModule, "Client went away during stream", map[string]interface{}{
				"session_id": sessionID,
				"error":      err.Error(),
			})
			cancel()
			return
		}
		c.metrics.RecordEvent(TransportSSE, string(ev.Type))
		if ev.Terminal() {
			return
		}
		if !chatbot.Pace(ctx, c.cfg.SSEEventDelay) {
			return
		}
	}
}

// WriteEvent writes ev in the server-sent events format and flushes it.
func WriteEvent(w *bufio.Writer, ev chatbot.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	return w.Flush()
}

func (c *chatController) ListIntents(ctx *fiber.Ctx) error {
	res := c.service.ListIntents(ctx.Context())
	return ctx.JSON(serverutils.SuccessResponse("Success get intents", res))
}

func (c *chatController) ShowSession(ctx *fiber.Ctx) error {
	res, err := c.service.GetSession(ctx.Context(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get session", res))
}
