package service

import (
	"context"
	"encoding/json"
	"iter"

	"ai-intent-chat-be/internal/dto"
	"ai-intent-chat-be/internal/pkg/logger"
	"ai-intent-chat-be/internal/repository/contract"
	"ai-intent-chat-be/pkg/ai/pipeline"
	"ai-intent-chat-be/pkg/apperror"
	"ai-intent-chat-be/pkg/chatbot"
	"ai-intent-chat-be/pkg/store"
)

const chatModule = "ChatService"

// IChatService is the application boundary shared by every transport.
type IChatService interface {
	// OpenSession loads the session for id, generating a fresh id when id is
	// missing or invalid. Storage failures fall back to an empty session.
	OpenSession(ctx context.Context, id string) *store.Session
	// Converse runs one persistent-connection message (JSON InboundMessage).
	Converse(ctx context.Context, sess *store.Session, payload []byte) iter.Seq[chatbot.Event]
	// Chat runs one request/response turn.
	Chat(ctx context.Context, req *dto.ChatRequest) (*store.Session, iter.Seq[chatbot.Event])
	// CloseSession persists the session one final time.
	CloseSession(ctx context.Context, sess *store.Session)
	ListIntents(ctx context.Context) []*dto.IntentResponse
	GetSession(ctx context.Context, id string) (*dto.SessionResponse, error)
}

type chatService struct {
	pipeline *pipeline.StreamPipeline
	sessions contract.SessionRepository
	logger   logger.ILogger
}

func NewChatService(p *pipeline.StreamPipeline, sessions contract.SessionRepository, log logger.ILogger) IChatService {
	return &chatService{pipeline: p, sessions: sessions, logger: log}
}

func (s *chatService) OpenSession(ctx context.Context, id string) *store.Session {
	id = store.ResolveSessionID(id)
	sess, err := s.sessions.Load(ctx, id)
	if err != nil {
		s.logger.Error(chatModule, "Failed to load session, starting empty", map[string]interface{}{
			"session_id": id,
			"error":      err.Error(),
		})
		return store.NewSession(id)
	}
	return sess
}

func (s *chatService) Converse(ctx context.Context, sess *store.Session, payload []byte) iter.Seq[chatbot.Event] {
	var in dto.InboundMessage
	if err := json.Unmarshal(payload, &in); err != nil {
		s.logger.Warn(chatModule, "Invalid inbound payload", map[string]interface{}{
			"session_id": sess.ID,
			"error":      err.Error(),
		})
		return func(yield func(chatbot.Event) bool) {
			yield(chatbot.Error("Invalid message payload: " + err.Error()))
		}
	}
	return s.pipeline.Handle(ctx, pipeline.Request{Message: in.Message, Context: in.Context}, sess)
}

func (s *chatService) Chat(ctx context.Context, req *dto.ChatRequest) (*store.Session, iter.Seq[chatbot.Event]) {
	sess := s.OpenSession(ctx, req.SessionId)

	memory := map[string]interface{}{
		store.MemoryLocale: s.pipeline.Engine().Locale(),
	}
	if req.Timezone != "" {
		memory[store.MemoryTimezone] = req.Timezone
	}
	if req.Name != "" {
		memory[store.MemoryName] = req.Name
	}
	return sess, s.pipeline.Handle(ctx, pipeline.Request{Message: req.Message, Context: memory}, sess)
}

func (s *chatService) CloseSession(ctx context.Context, sess *store.Session) {
	if err := s.sessions.Save(context.WithoutCancel(ctx), sess); err != nil {
		s.logger.Error(chatModule, "Failed to save session on close", map[string]interface{}{
			"session_id": sess.ID,
			"error":      err.Error(),
		})
	}
}

func (s *chatService) ListIntents(_ context.Context) []*dto.IntentResponse {
	ds := s.pipeline.Engine().Dataset()
	defs := s.pipeline.Registry().Definitions()

	res := make([]*dto.IntentResponse, 0, len(defs))
	for _, def := range defs {
		item := &dto.IntentResponse{
			Intent:      def.Intent,
			Description: def.Description,
			Aliases:     def.Aliases,
		}
		if set, ok := ds.Find(def.Intent); ok {
			item.Examples = len(set.Examples)
			if item.Description == "" {
				item.Description = set.Description
			}
		}
		res = append(res, item)
	}
	return res
}

func (s *chatService) GetSession(ctx context.Context, id string) (*dto.SessionResponse, error) {
	if !store.ValidSessionID(id) {
		return nil, apperror.New(apperror.KindInvalidRequest, "GetSession", "invalid session id")
	}
	sess, err := s.sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewSessionResponse(sess), nil
}
