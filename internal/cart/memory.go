package cart

import (
	"context"
	"sync"
)

// MemoryStore provides an in-memory implementation useful for testing and local development.
type MemoryStore struct {
	mu     sync.Mutex
	slots  map[string]map[string][]byte
	closed bool
}

// NewMemoryStore constructs an empty memory-backed store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]map[string][]byte)}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, scope, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrStoreClosed
	}
	v, ok := s.slots[scope][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, scope, key string, fn func([]byte, bool) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	bucket := s.slots[scope]
	current, found := bucket[key]
	next, err := fn(append([]byte(nil), current...), found)
	if err != nil {
		return err
	}
	if bucket == nil {
		bucket = make(map[string][]byte)
		s.slots[scope] = bucket
	}
	bucket[key] = append([]byte(nil), next...)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
