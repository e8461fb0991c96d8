package memory

import (
	"context"
	"sync"

	"github.com/PRicaldone/atelier-sub003/application/ports"
)

// Store is the in-memory snapshot store used by tests and local
// development. Payloads are copied on both sides of the boundary so a
// caller can never mutate stored state through a retained slice.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

var _ ports.SnapshotStore = (*Store)(nil)

// Get retrieves the payload stored under a logical key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.data[key]
	if !ok {
		return nil, ports.ErrKeyNotFound
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// Set stores a payload under a logical key
func (s *Store) Set(ctx context.Context, key string, payload []byte) error {
	stored := make([]byte, len(payload))
	copy(stored, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = stored
	return nil
}

// Delete removes a logical key. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Ping reports the store as always reachable
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close releases nothing; the store lives and dies with the process
func (s *Store) Close() error {
	return nil
}

// Keys lists the stored logical keys. Test helper.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	return keys
}
