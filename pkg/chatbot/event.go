package chatbot

// EventType of a streamed event
type EventType string

const (
	EventStatus  EventType = "status"
	EventChunk   EventType = "chunk"
	EventError   EventType = "error"
	EventDone    EventType = "done"
	EventWelcome EventType = "welcome"
)

// Event is one unit of streamed output. Values are never mutated once emitted.
type Event struct {
	Type EventType   `json:"type"`
	Text string      `json:"text,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

func Status(text string) Event { return Event{Type: EventStatus, Text: text} }

func Chunk(text string) Event { return Event{Type: EventChunk, Text: text} }

func Error(text string) Event { return Event{Type: EventError, Text: text} }

func Done(data interface{}) Event { return Event{Type: EventDone, Data: data} }

func Welcome(text string, data interface{}) Event {
	return Event{Type: EventWelcome, Text: text, Data: data}
}

// Terminal reports whether no further events follow e in a pipeline run.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
