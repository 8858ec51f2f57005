package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewUnclassifiedMessage(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	ev := NewUnclassifiedMessage("en_GB", "what is love", 0.31, at)

	assert.Equal(t, UNCLASSIFIED_MESSAGE, ev.EventType())
	assert.Equal(t, at, ev.Timestamp())
	assert.Equal(t, "2025-03-04T05:06:07Z", ev.Payload()["timestamp"])
	assert.Equal(t, 0.31, ev.Payload()["score"])
	assert.Equal(t, "events.UNCLASSIFIED_MESSAGE", Subject(ev.EventType()))
}
