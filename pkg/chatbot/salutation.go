package chatbot

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"ai-intent-chat-be/pkg/store"
)

var greetingPatterns = []struct{ key, label string }{
	{"good morning", "Good morning"},
	{"good afternoon", "Good afternoon"},
	{"good evening", "Good evening"},
	{"hi there", "Hi there"},
	{"hello there", "Hello there"},
	{"hey there", "Hey there"},
	{"hi", "Hi"},
	{"hey", "Hey"},
	{"hello", "Hello"},
	{"hiya", "Hiya"},
	{"howdy", "Howdy"},
	{"yo", "Yo"},
	{"greetings", "Greetings"},
	{"salutations", "Salutations"},
}

// Salutation greets the user, by name when the session knows it.
type Salutation struct {
	delay time.Duration
	now   func() time.Time
}

func NewSalutation(delay time.Duration, now func() time.Time) *Salutation {
	if now == nil {
		now = time.Now
	}
	return &Salutation{delay: delay, now: now}
}

func (h *Salutation) Respond(_ context.Context, message string, sess *store.Session) (string, error) {
	greeting := h.greeting(message, sess)
	if name := userName(sess); name != "" {
		return fmt.Sprintf("%s, %s!", greeting, name), nil
	}
	return greeting + "!", nil
}

func (h *Salutation) Stream(ctx context.Context, message string, sess *store.Session) iter.Seq2[Event, error] {
	return once(ctx, h.delay, func() (string, error) {
		return h.Respond(ctx, message, sess)
	})
}

func (h *Salutation) greeting(message string, sess *store.Session) string {
	m := strings.ToLower(strings.TrimSpace(message))
	for _, p := range greetingPatterns {
		if strings.Contains(m, p.key) {
			return p.label
		}
	}

	now := h.now()
	if tz := sess.String(store.MemoryTimezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			now = now.In(loc)
		}
	}
	switch hour := now.Hour(); {
	case hour < 12:
		return "Good morning"
	case hour < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

// userName reads "name" or "user.name" from memory.
func userName(sess *store.Session) string {
	if sess == nil {
		return ""
	}
	if name := strings.TrimSpace(sess.String(store.MemoryName)); name != "" {
		return name
	}
	if user, ok := sess.Memory["user"].(map[string]interface{}); ok {
		if name, ok := user["name"].(string); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}
