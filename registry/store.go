package registry

import (
	"context"
	"sync"

	"github.com/gregghy/sec-projet/protocol"
)

// Store persists auction records and user accounts. The registry stays the
// in-memory authority; the store is written through on every mutation and
// read once to warm a restarted process.
type Store interface {
	SaveAuction(ctx context.Context, a protocol.Auction) error
	LoadAuctions(ctx context.Context) ([]protocol.Auction, error)
	SaveUser(ctx context.Context, username, digest string) error
	LoadUsers(ctx context.Context) (map[string]string, error)
	Close() error
}

// MemoryStore is the default process-local store.
type MemoryStore struct {
	mu       sync.RWMutex
	auctions map[string]protocol.Auction
	users    map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions: make(map[string]protocol.Auction),
		users:    make(map[string]string),
	}
}

func (s *MemoryStore) SaveAuction(_ context.Context, a protocol.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[a.ID] = a
	return nil
}

func (s *MemoryStore) LoadAuctions(_ context.Context) ([]protocol.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		out = append(out, a)
	}
	return out, nil
}

func (s *MemoryStore) SaveUser(_ context.Context, username, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = digest
	return nil
}

func (s *MemoryStore) LoadUsers(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.users))
	for k, v := range s.users {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
