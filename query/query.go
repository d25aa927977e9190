package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Fetcher loads the authoritative value of a resource. Failures must be
// returned as errors.
type Fetcher[T any] func(ctx context.Context) (T, error)

// State is what a consumer renders.
type State[T any] struct {
	Data T
	// Loading is true until the first value, cached or fetched, is known.
	// Background revalidation does not set it again.
	Loading bool
	// Err is the last fetch error, cleared by the next success.
	Err error
	// HasData distinguishes a real value from the initial data.
	HasData   bool
	UpdatedAt time.Time
}

type Option[T any] func(*queryConfig[T])

type queryConfig[T any] struct {
	initial T
	enabled bool
}

// WithInitialData sets the value exposed before anything is known.
func WithInitialData[T any](v T) Option[T] {
	return func(c *queryConfig[T]) { c.initial = v }
}

// WithEnabled gates the query. A disabled query neither reads the
// persisted store nor fetches.
func WithEnabled[T any](enabled bool) Option[T] {
	return func(c *queryConfig[T]) { c.enabled = enabled }
}

// Query is one consumer of a cached resource.
type Query[T any] struct {
	client *Client
	key    string
	fetch  Fetcher[T]
	ctx    context.Context
	logger *slog.Logger

	mu        sync.Mutex
	state     State[T]
	enabled   bool
	active    bool
	activeFor string
	closed    bool
	listeners map[uint64]func(State[T])
	nextID    uint64
	inflight  int
	idle      chan struct{}

	// pending holds snapshots not yet delivered, in mutation order. The
	// goroutine that finds delivering false drains it with no lock held
	// while listeners run.
	pending    []State[T]
	delivering bool

	// commitMu keeps the persisted entry and in-memory data in step for
	// whichever fetch commits last.
	commitMu sync.Mutex

	unsubscribeIdentity func()
	closeOnce           sync.Once
}

// anyIdentity stands in for the principal when the client has no identity
// source.
const anyIdentity = "*"

// New registers a consumer for key. If the query is enabled and an identity
// is present, the persisted entry is read before New returns and a fetch is
// scheduled in the background. ctx bounds every fetch the query issues.
// Listeners registered with Subscribe run on the fetch goroutine.
func New[T any](ctx context.Context, c *Client, key string, fetch Fetcher[T], opts ...Option[T]) (*Query[T], error) {
	if c == nil {
		return nil, ErrNilStore
	}
	if fetch == nil {
		return nil, ErrNilFetcher
	}
	if err := cache.ValidateKey(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	cfg := queryConfig[T]{enabled: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	idle := make(chan struct{})
	close(idle)
	q := &Query[T]{
		client:    c,
		key:       key,
		fetch:     fetch,
		ctx:       ctx,
		logger:    c.logger.With(slog.String("key", key)),
		state:     State[T]{Data: cfg.initial, Loading: true},
		enabled:   cfg.enabled,
		listeners: make(map[uint64]func(State[T])),
		idle:      idle,
	}

	if c.identity != nil {
		q.unsubscribeIdentity = c.identity.Subscribe(func(ident *auth.Identity) {
			q.evaluate(principal(ident))
		})
		q.evaluate(principal(c.identity.CurrentIdentity()))
	} else {
		q.evaluate(anyIdentity)
	}
	return q, nil
}

func principal(ident *auth.Identity) string {
	if ident.IsAnonymous() {
		return ""
	}
	return ident.ID
}

func (q *Query[T]) currentPrincipal() string {
	if q.client.identity == nil {
		return anyIdentity
	}
	return principal(q.client.identity.CurrentIdentity())
}

// evaluate activates the query when it transitions to enabled with an
// identity, or when the identity switches to another principal.
func (q *Query[T]) evaluate(who string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	run := q.enabled && who != ""
	activate := run && (!q.active || q.activeFor != who)
	q.active = run
	if run {
		q.activeFor = who
	}
	q.mu.Unlock()

	if activate {
		q.activate()
	}
}

func (q *Query[T]) activate() {
	q.readPersisted()
	q.begin()
	go func() {
		defer q.end()
		_ = q.run(q.ctx)
	}()
}

func (q *Query[T]) readPersisted() {
	ctx := q.ctx
	payload, err := q.client.store.Get(ctx, q.key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			q.logger.Warn("query: persisted read failed", slog.Any("error", err))
		}
		q.client.metrics.recordRead(ctx, q.key, false)
		return
	}

	var value T
	if err := q.client.codec.Unmarshal(payload, &value); err != nil {
		q.logger.Warn("query: discarding undecodable cache entry", slog.Any("error", err))
		q.client.metrics.recordDecodeError(ctx, q.key)
		q.client.metrics.recordRead(ctx, q.key, false)
		return
	}
	q.client.metrics.recordRead(ctx, q.key, true)

	q.mu.Lock()
	q.state.Data = value
	q.state.HasData = true
	q.state.Loading = false
	q.enqueueLocked()
	q.mu.Unlock()
	q.deliver()
}

func (q *Query[T]) run(ctx context.Context) error {
	ctx, span := q.client.tracer.Start(ctx, "query.fetch",
		trace.WithAttributes(attribute.String("query.key", q.key)))
	defer span.End()

	start := time.Now()
	value, err := q.safeFetch(ctx)
	q.client.metrics.recordFetch(ctx, q.key, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		q.logger.Warn("query: fetch failed", slog.Any("error", err))
		q.mu.Lock()
		q.state.Err = err
		q.state.Loading = false
		q.enqueueLocked()
		q.mu.Unlock()
		q.deliver()
		return err
	}
	return q.commit(ctx, value)
}

func (q *Query[T]) safeFetch(ctx context.Context) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("query: fetch panicked: %v", r)
		}
	}()
	return q.fetch(ctx)
}

func (q *Query[T]) commit(ctx context.Context, value T) error {
	q.commitMu.Lock()

	var persistErr error
	payload, err := q.client.encode(value)
	if err == nil {
		err = q.client.store.Set(ctx, q.key, payload, q.client.entryTTL)
	}
	if err != nil {
		persistErr = fmt.Errorf("%w: %v", ErrPersist, err)
		q.logger.Warn("query: persisting fetched value failed", slog.Any("error", err))
	}

	q.mu.Lock()
	q.state.Data = value
	q.state.HasData = true
	q.state.Loading = false
	q.state.Err = persistErr
	q.state.UpdatedAt = time.Now()
	q.enqueueLocked()
	q.mu.Unlock()
	q.commitMu.Unlock()
	q.deliver()
	return persistErr
}

func (q *Query[T]) begin() {
	q.mu.Lock()
	if q.inflight == 0 {
		q.idle = make(chan struct{})
	}
	q.inflight++
	q.mu.Unlock()
}

func (q *Query[T]) end() {
	q.mu.Lock()
	q.inflight--
	if q.inflight == 0 {
		close(q.idle)
	}
	q.mu.Unlock()
}

// enqueueLocked queues the current state for listeners. q.mu must be held.
func (q *Query[T]) enqueueLocked() {
	if q.closed || len(q.listeners) == 0 {
		return
	}
	q.pending = append(q.pending, q.state)
}

// deliver drains pending snapshots unless another call is already doing
// so, in which case that call delivers them in order. Listeners may call
// back into the query.
func (q *Query[T]) deliver() {
	q.mu.Lock()
	if q.delivering {
		q.mu.Unlock()
		return
	}
	q.delivering = true
	for len(q.pending) > 0 && !q.closed {
		snapshot := q.pending[0]
		q.pending[0] = State[T]{}
		q.pending = q.pending[1:]
		listeners := make([]func(State[T]), 0, len(q.listeners))
		for _, fn := range q.listeners {
			listeners = append(listeners, fn)
		}
		q.mu.Unlock()

		for _, fn := range listeners {
			fn(snapshot)
		}
		q.mu.Lock()
	}
	q.pending = nil
	q.delivering = false
	q.mu.Unlock()
}

// Key returns the cache key.
func (q *Query[T]) Key() string { return q.key }

// State returns the current snapshot.
func (q *Query[T]) State() State[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Refresh fetches immediately, bypassing the persisted read, and blocks
// until the fetch resolves. The outcome is also reflected in State, so
// callers may ignore the returned error.
func (q *Query[T]) Refresh(ctx context.Context) error {
	q.mu.Lock()
	closed, active := q.closed, q.active
	q.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !active {
		return ErrInactive
	}

	q.begin()
	defer q.end()
	return q.run(ctx)
}

// SetData overrides the in-memory value without persisting or fetching.
func (q *Query[T]) SetData(value T) {
	q.mu.Lock()
	q.state.Data = value
	q.state.HasData = true
	q.enqueueLocked()
	q.mu.Unlock()
	q.deliver()
}

// SetEnabled flips the gating flag. Enabling an inactive query reads the
// persisted entry and schedules a fetch.
func (q *Query[T]) SetEnabled(enabled bool) {
	q.mu.Lock()
	q.enabled = enabled
	q.mu.Unlock()
	q.evaluate(q.currentPrincipal())
}

// Subscribe registers fn for state changes and returns a function that
// stops delivery. Snapshots arrive in the order the state changed, on the
// goroutine that changed it, usually the fetch goroutine. fn must not
// block: a stalled listener holds up that goroutine and any Wait on it.
// fn may call SetData, Refresh or Close on q; the resulting snapshots are
// delivered after fn returns.
func (q *Query[T]) Subscribe(fn func(State[T])) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	q.mu.Lock()
	id := q.nextID
	q.nextID++
	q.listeners[id] = fn
	q.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			delete(q.listeners, id)
			q.mu.Unlock()
		})
	}
}

// Wait blocks until no fetch issued by this query is in flight.
func (q *Query[T]) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close detaches the query from the identity source and stops
// notifications. In-flight fetches still complete and write through.
func (q *Query[T]) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.listeners = map[uint64]func(State[T]){}
		q.mu.Unlock()
		if q.unsubscribeIdentity != nil {
			q.unsubscribeIdentity()
		}
	})
}
