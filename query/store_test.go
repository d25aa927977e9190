package query

import (
	"context"
	"sync"
	"time"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/cache"
)

// countingStore is an in-memory cache.Store that records every call.
type countingStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	gets    int
	sets    int
	deletes int
	setErr  error
}

func newCountingStore() *countingStore {
	return &countingStore{data: make(map[string][]byte)}
}

func (s *countingStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	v, ok := s.data[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *countingStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *countingStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if _, ok := s.data[key]; !ok {
		return cache.ErrNotFound
	}
	delete(s.data, key)
	return nil
}

func (s *countingStore) seed(key, value string) {
	s.mu.Lock()
	s.data[key] = []byte(value)
	s.mu.Unlock()
}

func (s *countingStore) raw(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return string(v), ok
}

func (s *countingStore) counts() (gets, sets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.sets
}

// fakeIdentity is a settable IdentitySource.
type fakeIdentity struct {
	mu        sync.Mutex
	current   *auth.Identity
	listeners map[int]func(*auth.Identity)
	next      int
}

func newFakeIdentity(ident *auth.Identity) *fakeIdentity {
	return &fakeIdentity{current: ident, listeners: map[int]func(*auth.Identity){}}
}

func (f *fakeIdentity) CurrentIdentity() *auth.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current.Clone()
}

func (f *fakeIdentity) Subscribe(fn func(*auth.Identity)) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.listeners[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeIdentity) set(ident *auth.Identity) {
	f.mu.Lock()
	f.current = ident
	listeners := make([]func(*auth.Identity), 0, len(f.listeners))
	for _, fn := range f.listeners {
		listeners = append(listeners, fn)
	}
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(ident.Clone())
	}
}

func (f *fakeIdentity) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}
