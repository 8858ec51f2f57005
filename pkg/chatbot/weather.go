package chatbot

import (
	"context"
	"fmt"
	"iter"
	"time"

	"ai-intent-chat-be/pkg/store"
)

const defaultCity = "Berlin"

// Weather gives a canned forecast for the session's city.
type Weather struct {
	delay time.Duration
}

func NewWeather(delay time.Duration) *Weather {
	return &Weather{delay: delay}
}

func (h *Weather) Respond(_ context.Context, _ string, sess *store.Session) (string, error) {
	city := defaultCity
	if sess != nil {
		if c := sess.String("city"); c != "" {
			city = c
		}
	}
	return fmt.Sprintf("🌤️ The weather in %s looks great today!", city), nil
}

func (h *Weather) Stream(ctx context.Context, message string, sess *store.Session) iter.Seq2[Event, error] {
	return once(ctx, h.delay, func() (string, error) {
		return h.Respond(ctx, message, sess)
	})
}
