package cache

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.RWMutex
	etags map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{etags: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	etag, ok := s.etags[key]
	return etag, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, etag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.etags[key] = etag
	return nil
}

func (s *MemoryStore) Invalidate(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.etags, key)
	return nil
}
