package dto

import (
	"time"

	"ai-intent-chat-be/pkg/store"
)

// ChatRequest is the input of the server-push chat route. Fields come from
// the query string or a form/JSON body.
type ChatRequest struct {
	SessionId string `json:"sessionId" query:"sessionId" form:"sessionId"`
	Message   string `json:"message" query:"message" form:"message" validate:"max=4096"`
	Timezone  string `json:"timezone" query:"timezone" form:"timezone" validate:"omitempty,timezone"`
	Name      string `json:"name" query:"name" form:"name" validate:"omitempty,max=100"`
}

// InboundMessage is one client message on a persistent connection.
type InboundMessage struct {
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

type IntentResponse struct {
	Intent      string   `json:"intent"`
	Description string   `json:"description,omitempty"`
	Aliases     []string `json:"aliases"`
	Examples    int      `json:"examples"`
}

type HistoryEntryResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	Intent    string    `json:"intent,omitempty"`
}

type SessionResponse struct {
	Id      string                 `json:"id"`
	Memory  map[string]interface{} `json:"memory"`
	History []HistoryEntryResponse `json:"history"`
}

func NewSessionResponse(sess *store.Session) *SessionResponse {
	history := make([]HistoryEntryResponse, len(sess.History))
	for i, h := range sess.History {
		history[i] = HistoryEntryResponse{
			Timestamp: h.Timestamp,
			Role:      string(h.Role),
			Message:   h.Message,
			Intent:    h.Intent,
		}
	}
	return &SessionResponse{Id: sess.ID, Memory: sess.Memory, History: history}
}
