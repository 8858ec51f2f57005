package chatbot

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"ai-intent-chat-be/pkg/store"
)

const recallWindow = 6

// Memory recalls the most recent turns of the conversation.
type Memory struct {
	delay time.Duration
}

func NewMemory(delay time.Duration) *Memory {
	return &Memory{delay: delay}
}

func (h *Memory) Respond(_ context.Context, _ string, sess *store.Session) (string, error) {
	if sess == nil || len(sess.History) == 0 {
		return "I don't recall anything yet, we just started chatting!", nil
	}

	recent := sess.History
	if len(recent) > recallWindow {
		recent = recent[len(recent)-recallWindow:]
	}
	lines := make([]string, 0, len(recent))
	for _, entry := range recent {
		msg := strings.TrimSpace(entry.Message)
		if msg == "" {
			continue
		}
		who := "You said"
		if entry.Role == store.RoleAssistant {
			who = "I said"
		}
		lines = append(lines, fmt.Sprintf("%s: %q", who, msg))
	}

	prefix := ""
	if name := userName(sess); name != "" {
		prefix = name + ", "
	}
	return fmt.Sprintf("%sHere's what I remember from our chat: %s.", prefix, strings.Join(lines, "; ")), nil
}

func (h *Memory) Stream(ctx context.Context, message string, sess *store.Session) iter.Seq2[Event, error] {
	return once(ctx, h.delay, func() (string, error) {
		return h.Respond(ctx, message, sess)
	})
}
