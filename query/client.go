// Package query implements a stale-while-revalidate cache for dashboard
// reads. Each Query is one consumer: it serves the persisted snapshot for
// its key immediately, then refetches and writes the result back.
//
// Consumers sharing a key share only the persisted store. There is no
// request de-duplication across consumers and no ordering between
// concurrent fetches: the fetch that resolves last wins.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/cache"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNilStore   = errors.New("query: persisted store is nil")
	ErrNilFetcher = errors.New("query: fetcher is nil")
	ErrInvalidKey = errors.New("query: invalid key")
	ErrPersist    = errors.New("query: persist failed")
	ErrInactive   = errors.New("query: disabled or no identity")
	ErrClosed     = errors.New("query: closed")
)

// IdentitySource gates queries on the signed-in identity. *auth.Provider
// satisfies it.
type IdentitySource interface {
	CurrentIdentity() *auth.Identity
	Subscribe(fn func(*auth.Identity)) (unsubscribe func())
}

// Client holds the collaborators shared by every Query.
type Client struct {
	store    cache.Store
	identity IdentitySource
	codec    Codec
	logger   *slog.Logger
	metrics  *metrics
	tracer   trace.Tracer
	entryTTL time.Duration
}

type ClientOption func(*clientConfig)

type clientConfig struct {
	identity IdentitySource
	codec    Codec
	logger   *slog.Logger
	meters   metric.MeterProvider
	tracers  trace.TracerProvider
	entryTTL time.Duration
}

// WithIdentitySource gates every query on a present identity. Without it
// queries only honour their enabled flag.
func WithIdentitySource(src IdentitySource) ClientOption {
	return func(c *clientConfig) {
		if src != nil {
			c.identity = src
		}
	}
}

func WithCodec(codec Codec) ClientOption {
	return func(c *clientConfig) {
		if codec != nil {
			c.codec = codec
		}
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(c *clientConfig) {
		if mp != nil {
			c.meters = mp
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *clientConfig) {
		if tp != nil {
			c.tracers = tp
		}
	}
}

// WithEntryTTL expires persisted entries. Zero, the default, keeps entries
// until they are overwritten or invalidated.
func WithEntryTTL(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		if d >= 0 {
			c.entryTTL = d
		}
	}
}

func NewClient(store cache.Store, opts ...ClientOption) (*Client, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	cfg := clientConfig{
		codec:   JSONCodec{},
		logger:  slog.Default(),
		meters:  otel.GetMeterProvider(),
		tracers: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	m, err := newMetrics(cfg.meters)
	if err != nil {
		return nil, fmt.Errorf("query: metrics: %w", err)
	}
	return &Client{
		store:    store,
		identity: cfg.identity,
		codec:    cfg.codec,
		logger:   cfg.logger,
		metrics:  m,
		tracer:   cfg.tracers.Tracer(instrumentationName),
		entryTTL: cfg.entryTTL,
	}, nil
}

// Store exposes the persisted store.
func (c *Client) Store() cache.Store { return c.store }

func (c *Client) encode(v any) ([]byte, error) { return c.codec.Marshal(v) }

// Invalidate removes the persisted entries for keys. Missing keys are
// ignored. Mounted queries keep their in-memory data until they refetch.
func (c *Client) Invalidate(ctx context.Context, keys ...string) error {
	var result *multierror.Error
	for _, key := range keys {
		if err := cache.IgnoreNotFound(c.store.Delete(ctx, key)); err != nil {
			result = multierror.Append(result, fmt.Errorf("query: invalidate %s: %w", key, err))
		}
	}
	return result.ErrorOrNil()
}

// Write replaces the persisted entry for key with value.
func Write[T any](ctx context.Context, c *Client, key string, value T) error {
	if err := cache.ValidateKey(key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	payload, err := c.encode(value)
	if err != nil {
		return fmt.Errorf("query: encode %s: %w", key, err)
	}
	if err := c.store.Set(ctx, key, payload, c.entryTTL); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPersist, key, err)
	}
	return nil
}

// Read decodes the persisted entry for key. ok is false when nothing is
// stored.
func Read[T any](ctx context.Context, c *Client, key string) (value T, ok bool, err error) {
	payload, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return value, false, nil
		}
		return value, false, err
	}
	if err := c.codec.Unmarshal(payload, &value); err != nil {
		return value, false, fmt.Errorf("query: decode %s: %w", key, err)
	}
	return value, true, nil
}
