package service

import (
	"context"

	"ai-intent-chat-be/internal/metric"
	"ai-intent-chat-be/internal/pkg/logger"
	"ai-intent-chat-be/pkg/events"
	"ai-intent-chat-be/pkg/unclassified"

	"github.com/ThreeDotsLabs/watermill/message"
)

const relayModule = "UnclassifiedRelay"

// EventPublisher is satisfied by the NATS publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type IUnclassifiedRelay interface {
	Consume(ctx context.Context) error
}

// unclassifiedRelay forwards records from the in-process bus to the external
// event bus, where the retraining workflow collects them.
type unclassifiedRelay struct {
	subscriber message.Subscriber
	topic      string
	publisher  EventPublisher
	logger     logger.ILogger
	metrics    *metric.Metrics
}

func NewUnclassifiedRelay(
	subscriber message.Subscriber,
	topic string,
	publisher EventPublisher,
	log logger.ILogger,
	metrics *metric.Metrics,
) IUnclassifiedRelay {
	if topic == "" {
		topic = unclassified.Topic
	}
	return &unclassifiedRelay{subscriber: subscriber, topic: topic, publisher: publisher, logger: log, metrics: metrics}
}

// Consume subscribes and processes messages in the background until ctx is
// done.
func (r *unclassifiedRelay) Consume(ctx context.Context) error {
	messages, err := r.subscriber.Subscribe(ctx, r.topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			r.processMessage(ctx, msg)
		}
	}()
	return nil
}

func (r *unclassifiedRelay) processMessage(ctx context.Context, msg *message.Message) {
	rec, err := unclassified.DecodeRecord(msg)
	if err != nil {
		r.logger.Error(relayModule, "Failed to decode record", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	ev := events.NewUnclassifiedMessage(rec.Locale, rec.Message, rec.Score, rec.Timestamp)
	if err := r.publisher.Publish(ctx, ev); err != nil {
		// The record stays in the CSV log; the relay does not retry.
		r.metrics.RecordRelayFailure()
		r.logger.Warn(relayModule, "Failed to publish unclassified message, dropped", map[string]interface{}{
			"error":  err.Error(),
			"locale": rec.Locale,
		})
	}
	msg.Ack()
}
