package kvstore

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore is an in-memory implementation useful for tests and local runs.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore(seed map[string]string) *MemoryStore {
	s := &MemoryStore{data: make(map[string]string, len(seed))}
	for k, v := range seed {
		s.data[k] = v
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Update holds the write lock for the whole read-modify-write.
func (s *MemoryStore) Update(_ context.Context, key string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.data[key]
	next, err := fn(cur, ok)
	if err != nil {
		if errors.Is(err, ErrSkip) {
			return nil
		}
		return err
	}
	s.data[key] = next
	return nil
}

// Len reports the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
