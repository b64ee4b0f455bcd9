package checkpoint

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/voice-assistant/server/internal/assistant/model"
	errx "github.com/voice-assistant/server/internal/core/error"
)

const defaultMemorySize = 256

// MemoryStore keeps the most recently used sessions in process memory.
// Stored values are clones, so callers never share state with the cache.
type MemoryStore struct {
	cache *lru.Cache[string, *model.SessionState]
}

func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = defaultMemorySize
	}
	// lru.New only errors on non-positive size which we guard above.
	cache, _ := lru.New[string, *model.SessionState](size)
	return &MemoryStore{cache: cache}
}

func (m *MemoryStore) Load(_ context.Context, threadID string) (*model.SessionState, error) {
	if s, ok := m.cache.Get(threadID); ok {
		return s.Clone(), nil
	}
	return model.NewSession(threadID), nil
}

func (m *MemoryStore) Save(_ context.Context, session *model.SessionState) error {
	if session == nil || session.ThreadID == "" {
		return errx.Invalid(errx.ErrInvalidSession, "session has no thread id")
	}
	if prev, ok := m.cache.Peek(session.ThreadID); ok && len(session.History) < len(prev.History) {
		return errx.Invalid(errx.ErrInvalidSession, "history shrank")
	}
	m.cache.Add(session.ThreadID, session.Clone())
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, threadID string) error {
	m.cache.Remove(threadID)
	return nil
}

// Len reports how many sessions are cached.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

var _ model.CheckpointStore = (*MemoryStore)(nil)
