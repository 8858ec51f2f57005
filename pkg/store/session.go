package store

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Role of a history entry author
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// HistoryLimit caps the conversation history kept per session.
	HistoryLimit = 10

	// MaxSessionIDLength bounds externally supplied ids (they become file names).
	MaxSessionIDLength = 64
)

// Memory keys written by the chat core itself
const (
	MemoryTimezone    = "timezone"
	MemoryLocale      = "locale"
	MemoryName        = "name"
	MemoryLastMessage = "last_message"
	MemoryLastIntent  = "last_intent"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// HistoryEntry is one turn of the conversation
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Role      Role      `json:"role"`
	Message   string    `json:"message"`
	Intent    string    `json:"intent,omitempty"` // user entries only
}

// Session is the durable per-conversation memory. Memory values survive
// persistence as JSON values: strings, bools and nil are kept as is, every
// number comes back as float64.
type Session struct {
	ID      string                 `json:"id"`
	Memory  map[string]interface{} `json:"memory"`
	History []HistoryEntry         `json:"history"`
}

// NewSession returns an empty session for id.
func NewSession(id string) *Session {
	return &Session{
		ID:      id,
		Memory:  make(map[string]interface{}),
		History: []HistoryEntry{},
	}
}

// ValidSessionID reports whether id may be used as-is.
func ValidSessionID(id string) bool {
	return id != "" && len(id) <= MaxSessionIDLength && sessionIDPattern.MatchString(id)
}

// NewSessionID generates a fresh opaque id.
func NewSessionID() string {
	return uuid.NewString()
}

// ResolveSessionID keeps a valid caller-supplied id and generates one otherwise.
func ResolveSessionID(id string) string {
	if ValidSessionID(id) {
		return id
	}
	return NewSessionID()
}

// AppendHistory appends entry and keeps only the most recent limit entries.
// The input slice is never modified.
func AppendHistory(history []HistoryEntry, entry HistoryEntry, limit int) []HistoryEntry {
	if limit <= 0 {
		limit = HistoryLimit
	}
	out := make([]HistoryEntry, 0, len(history)+1)
	out = append(out, history...)
	out = append(out, entry)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Clone returns a deep-enough copy: the memory map and history slice are new,
// memory values themselves are shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := &Session{
		ID:      s.ID,
		Memory:  make(map[string]interface{}, len(s.Memory)),
		History: make([]HistoryEntry, len(s.History)),
	}
	for k, v := range s.Memory {
		c.Memory[k] = v
	}
	copy(c.History, s.History)
	return c
}

// Merge copies every key of values into the session memory.
func (s *Session) Merge(values map[string]interface{}) {
	if s.Memory == nil {
		s.Memory = make(map[string]interface{})
	}
	for k, v := range values {
		s.Memory[k] = v
	}
}

// String returns the memory value for key when it is a non-empty string.
func (s *Session) String(key string) string {
	if s == nil {
		return ""
	}
	v, _ := s.Memory[key].(string)
	return v
}
