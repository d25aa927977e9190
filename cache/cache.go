package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("cache: key not found")
	ErrInvalidKey = errors.New("cache: invalid key")
)

// MaxKeyLength bounds keys accepted by ValidateKey.
const MaxKeyLength = 512

// Store is the persisted key-value surface shared by every cached query.
// Values are opaque, caller-encoded payloads; a ttl <= 0 means the entry
// lives until it is overwritten or deleted.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects keys that are empty, oversized or contain control
// characters.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidKey, MaxKeyLength)
	}
	if strings.ContainsAny(key, "\r\n\t\x00") {
		return fmt.Errorf("%w: contains control characters", ErrInvalidKey)
	}
	return nil
}

// IgnoreNotFound returns nil for ErrNotFound and err otherwise.
func IgnoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
