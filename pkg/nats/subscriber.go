package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"ai-intent-chat-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventHandler is a function that processes an event.
type EventHandler func(ctx context.Context, event events.Event) error

// Subscriber handles listening for events from NATS.
type Subscriber struct {
	nc   *nats.Conn
	js   jetstream.JetStream
	subs []jetstream.ConsumeContext
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(url string) (*Subscriber, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	ensureStream(js)
	return &Subscriber{nc: nc, js: js}, nil
}

// Subscribe registers a handler for one event type through a durable
// consumer, so events published while the subscriber was away are delivered
// on the next start.
func (s *Subscriber) Subscribe(ctx context.Context, eventType, durableName string, handler EventHandler) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: events.Subject(eventType),
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		dispatch(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	s.subs = append(s.subs, cc)

	log.Printf("Subscribed to %s with durable %s", events.Subject(eventType), durableName)
	return nil
}

// dispatch decodes one delivery and runs handler on it. Every delivery is
// settled exactly once: Ack on success, Term on a malformed payload or a
// handler failure. Nothing is redelivered.
func dispatch(ctx context.Context, msg jetstream.Msg, handler EventHandler) {
	var payload map[string]interface{}
	if err := json.Unmarshal(msg.Data(), &payload); err != nil {
		log.Printf("Error unmarshalling event data: %v", err)
		_ = msg.Term()
		return
	}

	event := events.BaseEvent{
		Type:       strings.TrimPrefix(msg.Subject(), "events."),
		Data:       payload,
		OccurredAt: time.Now(),
	}
	if ts, ok := payload["timestamp"].(string); ok {
		if at, err := time.Parse(time.RFC3339, ts); err == nil {
			event.OccurredAt = at
		}
	}

	if err := handler(ctx, event); err != nil {
		log.Printf("Handler failed for event %s, dropping: %v", msg.Subject(), err)
		_ = msg.Term()
		return
	}
	_ = msg.Ack()
}

// Close stops all consumers and closes the connection.
func (s *Subscriber) Close() {
	for _, cc := range s.subs {
		cc.Stop()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
