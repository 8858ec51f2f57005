package controller

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"ai-intent-chat-be/internal/metric"
	"ai-intent-chat-be/internal/pkg/logger"
	"ai-intent-chat-be/internal/pkg/serverutils"
	"ai-intent-chat-be/internal/repository/memory"
	"ai-intent-chat-be/internal/service"
	"ai-intent-chat-be/internal/websocket"
	"ai-intent-chat-be/pkg/ai/dataset"
	"ai-intent-chat-be/pkg/ai/intent"
	"ai-intent-chat-be/pkg/ai/pipeline"
	"ai-intent-chat-be/pkg/chatbot"

	"github.com/gofiber/fiber/v2"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	app      *fiber.App
	hub      *websocket.Hub
	sessions *memory.SessionRepository
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	registry := chatbot.NewDefaultRegistry(chatbot.Options{AssistantName: "Testy", WordDelay: time.Millisecond})
	ds := &dataset.Dataset{Locale: "en_GB", Sets: dataset.Enrich(nil, registry.Aliases())}
	sessions := memory.NewSessionRepository(time.Minute)
	log := logger.NewNopLogger()
	metrics := metric.NewMetrics()
	p := pipeline.NewStreamPipeline(intent.NewEngine(ds, nil), registry, sessions, log)
	svc := service.NewChatService(p, sessions, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	realtime := websocket.DefaultOptions()
	realtime.EventDelay = 0

	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewChatController(svc, hub, log, metrics, ChatControllerConfig{Realtime: realtime}).RegisterRoutes(app.Group("/api"))

	return &testApp{app: app, hub: hub, sessions: sessions}
}

type sseEvent struct {
	name string
	ev   chatbot.Event
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		lines := strings.Split(block, "\n")
		require.Len(t, lines, 2, "block %q", block)
		require.True(t, strings.HasPrefix(lines[0], "event: "))
		require.True(t, strings.HasPrefix(lines[1], "data: "))

		var ev chatbot.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &ev))
		out = append(out, sseEvent{name: strings.TrimPrefix(lines[0], "event: "), ev: ev})
	}
	return out
}

func TestChatStreamsServerSentEvents(t *testing.T) {
	ta := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/api/ai/chat?sessionId=sse-1&message="+url.QueryEscape("hello there"), nil)
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, "sse-1", resp.Header.Get("X-Session-Id"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event: chunk\ndata: {\"type\":\"chunk\",\"text\":\"Hello\"}\n\n")

	events := parseSSE(t, string(body))
	require.Len(t, events, 3)
	assert.Equal(t, "chunk", events[0].name)
	assert.Equal(t, "done", events[2].name)
	assert.Equal(t, map[string]interface{}{"sessionId": "sse-1"}, events[2].ev.Data)

	saved, err := ta.sessions.Load(context.Background(), "sse-1")
	require.NoError(t, err)
	assert.Len(t, saved.History, 2)
	assert.Equal(t, "en_GB", saved.Memory["locale"])
}

func TestChatPostFormSetsMemory(t *testing.T) {
	ta := newTestApp(t)

	form := url.Values{"sessionId": {"sse-form"}, "message": {"hello"}, "name": {"Ada"}, "timezone": {"Asia/Tokyo"}}
	req := httptest.NewRequest(fiber.MethodPost, "/api/ai/chat", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	events := parseSSE(t, string(body))
	assert.Equal(t, "done", events[len(events)-1].name)

	saved, err := ta.sessions.Load(context.Background(), "sse-form")
	require.NoError(t, err)
	assert.Equal(t, "Ada", saved.Memory["name"])
	assert.Equal(t, "Asia/Tokyo", saved.Memory["timezone"])
}

func TestChatEmptyMessageIsAnErrorEvent(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(httptest.NewRequest(fiber.MethodGet, "/api/ai/chat", nil), -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	events := parseSSE(t, string(body))
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].name)
	assert.Equal(t, pipeline.TextEmptyMessage, events[0].ev.Text)
	assert.NotEmpty(t, resp.Header.Get("X-Session-Id"))
}

func TestChatRejectsInvalidTimezone(t *testing.T) {
	ta := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/api/ai/chat", strings.NewReader(`{"message":"hi","timezone":"Mars/Olympus"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body serverutils.BaseResponse[any]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Contains(t, body.Message, "Timezone")
}

func TestListIntents(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(httptest.NewRequest(fiber.MethodGet, "/api/ai/intents", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Success bool `json:"success"`
		Data    []struct {
			Intent  string   `json:"intent"`
			Aliases []string `json:"aliases"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Len(t, body.Data, 6)
}

func TestShowSession(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(httptest.NewRequest(fiber.MethodGet, "/api/ai/sessions/bad.id", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = ta.app.Test(httptest.NewRequest(fiber.MethodGet, "/api/ai/sessions/nobody-yet", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Id      string        `json:"id"`
			History []interface{} `json:"history"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "nobody-yet", body.Data.Id)
	assert.Empty(t, body.Data.History)
}

func TestWebsocketRouteRequiresUpgrade(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(httptest.NewRequest(fiber.MethodGet, "/api/ai/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestManagedWebsocketConversation(t *testing.T) {
	ta := newTestApp(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = ta.app.Listener(ln) }()
	t.Cleanup(func() { _ = ta.app.Shutdown() })

	conn, _, err := gws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/ai/ws?sessionId=managed-1", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() chatbot.Event {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var ev chatbot.Event
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	welcome := read()
	assert.Equal(t, chatbot.EventWelcome, welcome.Type)
	assert.Equal(t, map[string]interface{}{"sessionId": "managed-1"}, welcome.Data)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"message": "who are you"}))
	var last chatbot.Event
	for last = read(); !last.Terminal(); last = read() {
		assert.Equal(t, chatbot.EventChunk, last.Type)
	}
	assert.Equal(t, chatbot.EventDone, last.Type)

	require.NoError(t, conn.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, "")))

	require.Eventually(t, func() bool {
		saved, err := ta.sessions.Load(context.Background(), "managed-1")
		return err == nil && len(saved.History) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return ta.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
