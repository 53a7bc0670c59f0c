package server

import (
	"sync"

	"github.com/google/uuid"
)

// SessionStore maps live session identifiers to their symmetric keys. One
// entry is created per successful handshake; entries live for the process
// lifetime. A session id is never bound to two different keys.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

// NewSessionStore creates an empty session table.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string][]byte)}
}

// Create stores a session key under a fresh unique identifier and returns
// the identifier.
func (s *SessionStore) Create(key []byte) string {
	stored := make([]byte, len(key))
	copy(stored, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	for {
		if _, taken := s.sessions[id]; !taken {
			break
		}
		id = uuid.New().String()
	}
	s.sessions[id] = stored
	return id
}

// Key returns the symmetric key for a session id.
func (s *SessionStore) Key(id string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.sessions[id]
	return key, ok
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
