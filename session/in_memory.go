package session

import (
	"sync"

	"github.com/hupe1980/chatrelay/core"
)

// InMemoryStore is a volatile core.Store implementation keeping sessions in a
// process local map. It is safe for unbounded concurrent readers and writers;
// per-session mutable state is serialized by the Session itself, so the store
// hands out shared live references rather than clones.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Put inserts the session. Insert-only: an existing id is left untouched and
// false is returned.
func (s *InMemoryStore) Put(session *core.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return false
	}
	s.sessions[session.ID] = session
	return true
}

// Get returns the stored session for id, if any.
func (s *InMemoryStore) Get(id string) (*core.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// Remove deletes and returns the session for id, if any.
func (s *InMemoryStore) Remove(id string) (*core.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	return session, ok
}

// ListAll returns a point-in-time snapshot of all stored sessions. No
// ordering is guaranteed; callers sort as needed.
func (s *InMemoryStore) ListAll() []*core.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*core.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		all = append(all, session)
	}
	return all
}
