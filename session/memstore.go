package session

import (
	"context"
	"sync"
	"time"

	"github.com/stokaro/trustboard/core/clock"
)

type memEntry struct {
	user    User
	expires time.Time
}

// MemoryStore keeps sessions in process memory. Sessions do not survive a
// restart.
type MemoryStore struct {
	clock clock.Clock

	mu       sync.RWMutex
	sessions map[string]memEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryStore{clock: clk, sessions: make(map[string]memEntry)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (User, bool, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || !e.expires.After(s.clock.Now()) {
		return User{}, false, nil
	}
	return e.user, true, nil
}

func (s *MemoryStore) Set(_ context.Context, id string, user User, expires time.Time) error {
	s.mu.Lock()
	s.sessions[id] = memEntry{user: user, expires: expires}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// PurgeExpired deletes sessions that expired before now.
func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, e := range s.sessions {
		if !e.expires.After(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}
