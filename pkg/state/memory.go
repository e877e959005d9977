package state

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory. Values are copied on the way in
// and out so callers never share buffers with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[Key][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Key][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBytes(v), nil
}

func (s *MemoryStore) Set(_ context.Context, key Key, value []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = copyBytes(value)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
