package state

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 1024

// CachedStore fronts another store with a bounded read/write-through cache.
type CachedStore struct {
	next  Store
	cache *lru.Cache[Key, []byte]
}

// NewCachedStore wraps next with an LRU of the given size.
func NewCachedStore(next Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[Key, []byte](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{next: next, cache: cache}, nil
}

func (s *CachedStore) Get(ctx context.Context, key Key) ([]byte, error) {
	if v, ok := s.cache.Get(key); ok {
		return copyBytes(v), nil
	}
	v, err := s.next.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.cache.Remove(key)
		}
		return nil, err
	}
	s.cache.Add(key, copyBytes(v))
	return v, nil
}

func (s *CachedStore) Set(ctx context.Context, key Key, value []byte) error {
	if err := s.next.Set(ctx, key, value); err != nil {
		s.cache.Remove(key)
		return err
	}
	s.cache.Add(key, copyBytes(value))
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, key Key) error {
	s.cache.Remove(key)
	return s.next.Delete(ctx, key)
}

// Purge drops every cached entry.
func (s *CachedStore) Purge() {
	s.cache.Purge()
}
