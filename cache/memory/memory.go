// Package memory provides a process-local cache.Store backed by ttlcache.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/adeilh/aura/cache"
	"github.com/jellydator/ttlcache/v3"
)

// Options controls the in-memory store.
type Options struct {
	// Capacity caps the number of entries; zero means unbounded.
	Capacity uint64
	// DefaultTTL applies when Set is called with ttl == 0 and DefaultTTL > 0.
	DefaultTTL time.Duration
}

// Store implements cache.Store on top of a ttlcache.Cache.
type Store struct {
	items     *ttlcache.Cache[string, []byte]
	startOnce sync.Once
	stopOnce  sync.Once
}

var _ cache.Store = (*Store)(nil)

// NewStore builds an in-memory store. Call Close to stop the expiry loop.
func NewStore(opts Options) *Store {
	cacheOpts := []ttlcache.Option[string, []byte]{
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	}
	if opts.Capacity > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[string, []byte](opts.Capacity))
	}
	if opts.DefaultTTL > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithTTL[string, []byte](opts.DefaultTTL))
	}
	s := &Store{items: ttlcache.New(cacheOpts...)}
	s.startOnce.Do(func() { go s.items.Start() })
	return s
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item := s.items.Get(key)
	if item == nil {
		return nil, cache.ErrNotFound
	}
	return append([]byte(nil), item.Value()...), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	expiry := ttlcache.DefaultTTL
	if ttl > 0 {
		expiry = ttl
	}
	s.items.Set(key, append([]byte(nil), value...), expiry)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.items.Has(key) {
		return cache.ErrNotFound
	}
	s.items.Delete(key)
	return nil
}

// Keys lists the live keys.
func (s *Store) Keys() []string {
	return s.items.Keys()
}

// Len reports the number of live entries.
func (s *Store) Len() int {
	return s.items.Len()
}

// Close stops the background expiry loop.
func (s *Store) Close() error {
	s.stopOnce.Do(s.items.Stop)
	return nil
}
