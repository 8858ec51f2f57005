package contract

import (
	"context"

	"ai-intent-chat-be/pkg/store"
)

// SessionRepository persists one document per session id.
//
// Load returns an empty session when nothing is stored under id or the stored
// document cannot be parsed. Only storage failures other than "not found"
// are returned as errors.
type SessionRepository interface {
	Load(ctx context.Context, id string) (*store.Session, error)
	Save(ctx context.Context, session *store.Session) error
}
