// Package chatbot contains the response handlers and the registry that maps
// intents to them.
package chatbot

import (
	"context"
	"iter"
	"strings"
	"time"

	"ai-intent-chat-be/pkg/store"
)

// Handler produces a response for one intent. Both methods must depend only on
// their arguments; the session is a snapshot owned by the caller.
type Handler interface {
	// Respond returns the whole answer at once.
	Respond(ctx context.Context, message string, sess *store.Session) (string, error)
	// Stream yields the answer lazily. A yielded error ends the stream.
	Stream(ctx context.Context, message string, sess *store.Session) iter.Seq2[Event, error]
}

// Pace waits d or until ctx is done. It reports false on cancellation.
func Pace(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// streamWords yields text word by word as chunk events, pausing delay after
// each one.
func streamWords(ctx context.Context, text string, delay time.Duration) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for _, word := range strings.Fields(text) {
			if ctx.Err() != nil {
				yield(Event{}, ctx.Err())
				return
			}
			if !yield(Chunk(word), nil) {
				return
			}
			if !Pace(ctx, delay) {
				return
			}
		}
	}
}

// once wraps a Respond-style function into a word stream.
func once(ctx context.Context, delay time.Duration, respond func() (string, error)) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		text, err := respond()
		if err != nil {
			yield(Event{}, err)
			return
		}
		for ev, err := range streamWords(ctx, text, delay) {
			if !yield(ev, err) {
				return
			}
		}
	}
}
