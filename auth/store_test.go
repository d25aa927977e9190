package auth

import (
	"context"
	"sync"
	"time"

	"github.com/adeilh/aura/cache"
)

// mockCacheStore implements cache.Store for testing
type mockCacheStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	err  error
}

func newMockCacheStore() *mockCacheStore {
	return &mockCacheStore{data: make(map[string][]byte)}
}

func (s *mockCacheStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	v, ok := s.data[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return v, nil
}

func (s *mockCacheStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *mockCacheStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.data[key]; !ok {
		return cache.ErrNotFound
	}
	delete(s.data, key)
	return nil
}

func (s *mockCacheStore) setError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *mockCacheStore) raw(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *mockCacheStore) put(key string, value []byte) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}
