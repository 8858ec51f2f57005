package unclassified

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Topic carries unclassified records on the in-process bus.
const Topic = "unclassified.messages"

// BusSink publishes records to a watermill topic for asynchronous consumers.
type BusSink struct {
	publisher message.Publisher
	topic     string
}

func NewBusSink(publisher message.Publisher, topic string) *BusSink {
	if topic == "" {
		topic = Topic
	}
	return &BusSink{publisher: publisher, topic: topic}
}

func (b *BusSink) Log(_ context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal unclassified record: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.publisher.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("failed to publish unclassified record: %w", err)
	}
	return nil
}

// DecodeRecord parses a bus payload back into a Record.
func DecodeRecord(msg *message.Message) (Record, error) {
	var rec Record
	err := json.Unmarshal(msg.Payload, &rec)
	return rec, err
}
