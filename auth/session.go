package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adeilh/aura/cache"
	"github.com/adeilh/aura/cache/redis"
)

// DefaultSessionKey is where the current session is persisted.
const DefaultSessionKey = "aura_auth_session"

type SessionStoreOptions struct {
	Key string
	// TTL bounds how long a persisted session survives without refresh;
	// zero keeps it until sign-out.
	TTL time.Duration
}

// CacheSessionStore persists the signed-in session in a cache.Store.
type CacheSessionStore struct {
	store cache.Store
	key   string
	ttl   time.Duration
}

func NewCacheSessionStore(store cache.Store, opts SessionStoreOptions) *CacheSessionStore {
	key := opts.Key
	if key == "" {
		key = DefaultSessionKey
	}
	return &CacheSessionStore{store: store, key: key, ttl: opts.TTL}
}

type RedisSessionStoreOptions struct {
	Key   string
	TTL   time.Duration
	Redis redis.Options
}

// NewRedisSessionStore shares one session between processes through Redis.
func NewRedisSessionStore(opts RedisSessionStoreOptions) *CacheSessionStore {
	return NewCacheSessionStore(
		redis.NewStore(opts.Redis),
		SessionStoreOptions{Key: opts.Key, TTL: opts.TTL},
	)
}

// Load returns the persisted session or ErrNoSession.
func (s *CacheSessionStore) Load(ctx context.Context) (*Session, error) {
	if err := contextError(ctx); err != nil {
		return nil, err
	}
	payload, err := s.store.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		_ = s.store.Delete(ctx, s.key)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if err := sess.validate(); err != nil {
		_ = s.store.Delete(ctx, s.key)
		return nil, err
	}
	return &sess, nil
}

// Save replaces the persisted session.
func (s *CacheSessionStore) Save(ctx context.Context, sess *Session) error {
	if err := contextError(ctx); err != nil {
		return err
	}
	if err := sess.validate(); err != nil {
		return err
	}
	record, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, s.key, record, s.ttl)
}

// Clear removes the persisted session; clearing an empty store is not an error.
func (s *CacheSessionStore) Clear(ctx context.Context) error {
	if err := contextError(ctx); err != nil {
		return err
	}
	return cache.IgnoreNotFound(s.store.Delete(ctx, s.key))
}
