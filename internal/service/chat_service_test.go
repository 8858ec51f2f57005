package service

import (
	"context"
	"testing"
	"time"

	"ai-intent-chat-be/internal/dto"
	"ai-intent-chat-be/internal/pkg/logger"
	"ai-intent-chat-be/internal/repository/memory"
	"ai-intent-chat-be/pkg/ai/dataset"
	"ai-intent-chat-be/pkg/ai/intent"
	"ai-intent-chat-be/pkg/ai/pipeline"
	"ai-intent-chat-be/pkg/apperror"
	"ai-intent-chat-be/pkg/chatbot"
	"ai-intent-chat-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChatService(t *testing.T) (IChatService, *memory.SessionRepository) {
	t.Helper()
	now := func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	registry := chatbot.NewDefaultRegistry(chatbot.Options{Now: now, AssistantName: "Testy"})
	ds := &dataset.Dataset{Locale: "en_GB", Sets: dataset.Enrich([]dataset.ExampleSet{
		{Intent: "joke", Examples: []string{"make me laugh"}, Description: "Tells a joke"},
	}, registry.Aliases())}
	engine := intent.NewEngine(ds, nil, intent.WithClock(now))
	sessions := memory.NewSessionRepository(time.Minute)
	p := pipeline.NewStreamPipeline(engine, registry, sessions, logger.NewNopLogger(), pipeline.WithClock(now))
	return NewChatService(p, sessions, logger.NewNopLogger()), sessions
}

func collect(seq func(func(chatbot.Event) bool)) []chatbot.Event {
	var out []chatbot.Event
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

func TestOpenSessionGeneratesIdForInvalidInput(t *testing.T) {
	svc, _ := newTestChatService(t)

	sess := svc.OpenSession(context.Background(), "../etc/passwd")
	assert.True(t, store.ValidSessionID(sess.ID))
	assert.NotEqual(t, "../etc/passwd", sess.ID)

	sess = svc.OpenSession(context.Background(), "keep-me")
	assert.Equal(t, "keep-me", sess.ID)
}

func TestConverseDecodesContext(t *testing.T) {
	svc, _ := newTestChatService(t)
	sess := store.NewSession("conv-1")

	events := collect(svc.Converse(context.Background(), sess, []byte(`{"message":"hello","context":{"name":"Ada"}}`)))

	require.NotEmpty(t, events)
	assert.Equal(t, chatbot.EventDone, events[len(events)-1].Type)
	assert.Equal(t, "Ada", sess.Memory[store.MemoryName])
}

func TestConverseRejectsInvalidJSON(t *testing.T) {
	svc, _ := newTestChatService(t)
	sess := store.NewSession("conv-2")

	events := collect(svc.Converse(context.Background(), sess, []byte(`not json`)))

	require.Len(t, events, 1)
	assert.Equal(t, chatbot.EventError, events[0].Type)
	assert.Empty(t, sess.History)
}

func TestChatSetsRequestMemory(t *testing.T) {
	svc, sessions := newTestChatService(t)

	sess, seq := svc.Chat(context.Background(), &dto.ChatRequest{
		SessionId: "chat-1",
		Message:   "hello",
		Timezone:  "Asia/Tokyo",
		Name:      "Grace",
	})
	events := collect(seq)

	require.NotEmpty(t, events)
	assert.Equal(t, "chat-1", sess.ID)
	assert.Equal(t, "Asia/Tokyo", sess.Memory[store.MemoryTimezone])
	assert.Equal(t, "Grace", sess.Memory[store.MemoryName])
	assert.Equal(t, "en_GB", sess.Memory[store.MemoryLocale])

	saved, err := sessions.Load(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Len(t, saved.History, 2)
}

func TestListIntents(t *testing.T) {
	svc, _ := newTestChatService(t)

	intents := svc.ListIntents(context.Background())
	require.Len(t, intents, 6)

	byName := map[string]*dto.IntentResponse{}
	for _, it := range intents {
		byName[it.Intent] = it
	}
	require.Contains(t, byName, "joke")
	assert.Greater(t, byName["joke"].Examples, len(byName["joke"].Aliases))
	assert.NotEmpty(t, byName["salutation"].Aliases)
}

func TestGetSession(t *testing.T) {
	svc, sessions := newTestChatService(t)

	_, err := svc.GetSession(context.Background(), "bad id!")
	assert.ErrorIs(t, err, apperror.ErrInvalidRequest)

	resp, err := svc.GetSession(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, "unknown", resp.Id)
	assert.Empty(t, resp.History)

	sess := store.NewSession("known")
	sess.Memory["name"] = "Ada"
	require.NoError(t, sessions.Save(context.Background(), sess))

	resp, err = svc.GetSession(context.Background(), "known")
	require.NoError(t, err)
	assert.Equal(t, "Ada", resp.Memory["name"])
}

func TestCloseSessionPersists(t *testing.T) {
	svc, sessions := newTestChatService(t)
	sess := store.NewSession("close-1")
	sess.Memory["city"] = "Oslo"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.CloseSession(ctx, sess)

	saved, err := sessions.Load(context.Background(), "close-1")
	require.NoError(t, err)
	assert.Equal(t, "Oslo", saved.Memory["city"])
}
