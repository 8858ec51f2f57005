package store

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendHistoryKeepsMostRecent(t *testing.T) {
	var history []HistoryEntry
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		history = AppendHistory(history, HistoryEntry{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Role:      RoleUser,
			Message:   fmt.Sprintf("msg-%d", i),
		}, HistoryLimit)
		assert.LessOrEqual(t, len(history), HistoryLimit)
	}

	require.Len(t, history, HistoryLimit)
	assert.Equal(t, "msg-15", history[0].Message)
	assert.Equal(t, "msg-24", history[HistoryLimit-1].Message)
}

func TestAppendHistoryDoesNotMutateInput(t *testing.T) {
	in := make([]HistoryEntry, 0, 4)
	in = append(in, HistoryEntry{Message: "a"}, HistoryEntry{Message: "b"})

	out := AppendHistory(in, HistoryEntry{Message: "c"}, 2)

	assert.Equal(t, []string{"b", "c"}, messages(out))
	assert.Equal(t, []string{"a", "b"}, messages(in))
}

func TestAppendHistoryDefaultLimit(t *testing.T) {
	var history []HistoryEntry
	for i := 0; i < 12; i++ {
		history = AppendHistory(history, HistoryEntry{Message: "x"}, 0)
	}
	assert.Len(t, history, HistoryLimit)
}

func TestValidSessionID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"abc-123_DEF", true},
		{"", false},
		{"../etc/passwd", false},
		{"has space", false},
		{strings.Repeat("a", 64), true},
		{strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidSessionID(tt.id))
		})
	}
}

func TestResolveSessionID(t *testing.T) {
	assert.Equal(t, "keep-me", ResolveSessionID("keep-me"))

	generated := ResolveSessionID("bad id!")
	assert.True(t, ValidSessionID(generated))
	assert.NotEqual(t, "bad id!", generated)
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewSession("s1")
	s.Memory["name"] = "Ada"
	s.History = AppendHistory(s.History, HistoryEntry{Message: "hi"}, HistoryLimit)

	c := s.Clone()
	c.Memory["name"] = "Grace"
	c.History[0].Message = "changed"

	assert.Equal(t, "Ada", s.String("name"))
	assert.Equal(t, "hi", s.History[0].Message)
}

func messages(h []HistoryEntry) []string {
	out := make([]string, len(h))
	for i, e := range h {
		out[i] = e.Message
	}
	return out
}
