package memory

import (
	"context"
	"time"

	"ai-intent-chat-be/internal/repository/contract"
	"ai-intent-chat-be/pkg/store"

	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps sessions in process memory only. Entries expire
// after ttl of inactivity.
type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository(ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionRepository{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (r *SessionRepository) Load(_ context.Context, id string) (*store.Session, error) {
	if x, found := r.cache.Get(id); found {
		return x.(*store.Session).Clone(), nil
	}
	return store.NewSession(id), nil
}

func (r *SessionRepository) Save(_ context.Context, sess *store.Session) error {
	r.cache.Set(sess.ID, sess.Clone(), cache.DefaultExpiration)
	return nil
}

// CachedSessionRepository is a read-through cache in front of a durable
// repository. Saves always reach the backend first.
type CachedSessionRepository struct {
	backend contract.SessionRepository
	cache   *cache.Cache
}

func NewCachedSessionRepository(backend contract.SessionRepository, ttl time.Duration) *CachedSessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedSessionRepository{
		backend: backend,
		cache:   cache.New(ttl, 10*time.Minute),
	}
}

func (r *CachedSessionRepository) Load(ctx context.Context, id string) (*store.Session, error) {
	if x, found := r.cache.Get(id); found {
		return x.(*store.Session).Clone(), nil
	}
	sess, err := r.backend.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Set(id, sess.Clone(), cache.DefaultExpiration)
	return sess, nil
}

func (r *CachedSessionRepository) Save(ctx context.Context, sess *store.Session) error {
	if err := r.backend.Save(ctx, sess); err != nil {
		r.cache.Delete(sess.ID)
		return err
	}
	r.cache.Set(sess.ID, sess.Clone(), cache.DefaultExpiration)
	return nil
}
