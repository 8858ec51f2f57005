package chatbot

import (
	"context"
	"fmt"
	"iter"
	"time"

	"ai-intent-chat-be/pkg/store"
)

const clockLookupDelay = 300 * time.Millisecond

// Clock tells the current time in the session's timezone.
type Clock struct {
	lookupDelay time.Duration
	now         func() time.Time
}

// NewClock creates the handler. lookupDelay is the pause between the status
// and the answer.
func NewClock(lookupDelay time.Duration, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{lookupDelay: lookupDelay, now: now}
}

func timezoneOf(sess *store.Session) string {
	if sess != nil {
		if tz := sess.String(store.MemoryTimezone); tz != "" {
			return tz
		}
	}
	return "UTC"
}

func (h *Clock) Respond(_ context.Context, _ string, sess *store.Session) (string, error) {
	tz := timezoneOf(sess)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	return fmt.Sprintf("🕒 The current time in %s is %s", tz, h.now().In(loc).Format("15:04:05")), nil
}

func (h *Clock) Stream(ctx context.Context, _ string, sess *store.Session) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		tz := timezoneOf(sess)
		if !yield(Status(fmt.Sprintf("Checking time for %s...", tz)), nil) {
			return
		}
		if !Pace(ctx, h.lookupDelay) {
			return
		}

		loc, err := time.LoadLocation(tz)
		if err != nil {
			yield(Event{Type: EventError, Text: "Failed to retrieve time", Data: err.Error()}, nil)
			return
		}
		if !yield(Chunk(fmt.Sprintf("✅ It's %s", h.now().In(loc).Format("15:04:05"))), nil) {
			return
		}
		yield(Done(nil), nil)
	}
}
