package chatbot

import (
	"context"
	"fmt"
	"iter"
	"time"

	"ai-intent-chat-be/pkg/store"
)

const DefaultAssistantName = "EpiNett AI"

// Identity introduces the assistant.
type Identity struct {
	name  string
	delay time.Duration
}

func NewIdentity(name string, delay time.Duration) *Identity {
	if name == "" {
		name = DefaultAssistantName
	}
	return &Identity{name: name, delay: delay}
}

func (h *Identity) Respond(context.Context, string, *store.Session) (string, error) {
	return fmt.Sprintf("I'm %s, your friendly AI assistant! How can I help you today?", h.name), nil
}

func (h *Identity) Stream(ctx context.Context, message string, sess *store.Session) iter.Seq2[Event, error] {
	return once(ctx, h.delay, func() (string, error) {
		return h.Respond(ctx, message, sess)
	})
}
