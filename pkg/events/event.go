package events

import "time"

// Event types published on the bus. The NATS subject is "events.<type>".
const (
	UNCLASSIFIED_MESSAGE = "UNCLASSIFIED_MESSAGE"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "UNCLASSIFIED_MESSAGE").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the generic Event implementation.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewUnclassifiedMessage describes a message the classifier could not place
// with confidence.
func NewUnclassifiedMessage(locale, message string, score float64, at time.Time) BaseEvent {
	return BaseEvent{
		Type: UNCLASSIFIED_MESSAGE,
		Data: map[string]interface{}{
			"locale":    locale,
			"message":   message,
			"score":     score,
			"timestamp": at.Format(time.RFC3339),
		},
		OccurredAt: at,
	}
}

// Subject returns the NATS subject for an event type.
func Subject(eventType string) string {
	return "events." + eventType
}
