package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"ai-intent-chat-be/pkg/apperror"
	"ai-intent-chat-be/pkg/store"
)

// SessionRepository stores each session as {dir}/{id}.json.
type SessionRepository struct {
	dir   string
	locks sync.Map // id -> *sync.Mutex
}

func NewSessionRepository(dir string) *SessionRepository {
	return &SessionRepository{dir: dir}
}

func (r *SessionRepository) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

func (r *SessionRepository) lock(id string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (r *SessionRepository) Load(_ context.Context, id string) (*store.Session, error) {
	if !store.ValidSessionID(id) {
		return nil, apperror.New(apperror.KindInvalidRequest, "file.Load", fmt.Sprintf("invalid session id %q", id))
	}

	mu := r.lock(id)
	mu.Lock()
	raw, err := os.ReadFile(r.path(id))
	mu.Unlock()

	if errors.Is(err, fs.ErrNotExist) {
		return store.NewSession(id), nil
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.KindSessionPersistence, "file.Load", err)
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

// Save writes to a temp file in the same directory and renames it over the
// previous document, so readers never observe a partial write.
func (r *SessionRepository) Save(_ context.Context, sess *store.Session) error {
	if sess == nil || !store.ValidSessionID(sess.ID) {
		return apperror.New(apperror.KindInvalidRequest, "file.Save", "session has no valid id")
	}

	raw, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return apperror.Wrap(apperror.KindSessionPersistence, "file.Save", err)
	}

	mu := r.lock(sess.ID)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return apperror.Wrap(apperror.KindSessionPersistence, "file.Save", err)
	}
	tmp, err := os.CreateTemp(r.dir, sess.ID+".*.tmp")
	if err != nil {
		return apperror.Wrap(apperror.KindSessionPersistence, "file.Save", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperror.Wrap(apperror.KindSessionPersistence, "file.Save", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperror.Wrap(apperror.KindSessionPersistence, "file.Save", err)
	}
	if err := os.Rename(tmpName, r.path(sess.ID)); err != nil {
		os.Remove(tmpName)
		return apperror.Wrap(apperror.KindSessionPersistence, "file.Save", err)
	}
	return nil
}
