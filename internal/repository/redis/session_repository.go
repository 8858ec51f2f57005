package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ai-intent-chat-be/pkg/apperror"
	"ai-intent-chat-be/pkg/store"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "ai:session:"

// SessionRepository stores each session as a JSON string under
// ai:session:{id}. A single SET replaces the whole document, so writes are
// atomic per key.
type SessionRepository struct {
	rdb *goredis.Client
	ttl time.Duration // zero keeps documents forever
}

func NewSessionRepository(rdb *goredis.Client, ttl time.Duration) *SessionRepository {
	return &SessionRepository{rdb: rdb, ttl: ttl}
}

func Key(id string) string {
	return keyPrefix + id
}

func (r *SessionRepository) Load(ctx context.Context, id string) (*store.Session, error) {
	raw, err := r.rdb.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return store.NewSession(id), nil
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.KindSessionPersistence, "redis.Load", err)
	}

	sess := store.NewSession(id)
	if err := json.Unmarshal(raw, sess); err != nil {
		return store.NewSession(id), nil
	}
	sess.ID = id
	if sess.Memory == nil {
		sess.Memory = make(map[string]interface{})
	}
	if sess.History == nil {
		sess.History = []store.HistoryEntry{}
	}
	return sess, nil
}

func (r *SessionRepository) Save(ctx context.Context, sess *store.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return apperror.Wrap(apperror.KindSessionPersistence, "redis.Save", err)
	}
	if err := r.rdb.Set(ctx, Key(sess.ID), raw, r.ttl).Err(); err != nil {
		return apperror.Wrap(apperror.KindSessionPersistence, "redis.Save", err)
	}
	return nil
}
