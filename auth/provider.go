package auth

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const defaultResolveTimeout = 10 * time.Second

// Provider tracks the current identity and tells subscribers when it
// changes. The initial resolution is delivered through the same callbacks
// as later sign-in, sign-out and refresh events.
type Provider struct {
	source         Source
	profiles       ProfileFetcher
	logger         *slog.Logger
	resolveTimeout time.Duration

	mu        sync.RWMutex
	session   *Session
	profile   *Profile
	loading   bool
	listeners map[uint64]func(*Identity)
	nextID    uint64

	// serializes apply so listeners observe transitions in order
	applyMu    sync.Mutex
	eventSeen  bool
	sourceSub  Subscription
	ready      chan struct{}
	readyOnce  sync.Once
	startOnce  sync.Once
	closeOnce  sync.Once
	cancelInit context.CancelFunc
}

type ProviderOption func(*Provider)

// WithProfileFetcher enables profile enrichment after identity resolution.
func WithProfileFetcher(f ProfileFetcher) ProviderOption {
	return func(p *Provider) {
		if f != nil {
			p.profiles = f
		}
	}
}

func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithResolveTimeout bounds the initial session resolution and each
// profile fetch.
func WithResolveTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.resolveTimeout = d
		}
	}
}

func NewProvider(source Source, opts ...ProviderOption) (*Provider, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	p := &Provider{
		source:         source,
		logger:         slog.Default(),
		resolveTimeout: defaultResolveTimeout,
		loading:        true,
		listeners:      make(map[uint64]func(*Identity)),
		ready:          make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Start subscribes to the source and resolves the current session in the
// background. Calling Start more than once has no effect.
func (p *Provider) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		initCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		p.cancelInit = cancel
		p.sourceSub = p.source.OnAuthStateChange(p.handleEvent)
		go p.resolveInitial(initCtx)
	})
}

func (p *Provider) resolveInitial(ctx context.Context) {
	defer p.finishLoading()

	rctx, cancel := context.WithTimeout(ctx, p.resolveTimeout)
	sess, err := p.source.CurrentSession(rctx)
	cancel()
	if err != nil {
		p.logger.Warn("auth: initial session resolution failed", slog.Any("error", err))
		sess = nil
	}

	p.applyMu.Lock()
	defer p.applyMu.Unlock()
	if p.eventSeen {
		// A pushed event already carries a newer state.
		return
	}
	p.applyLocked(ctx, sess)
}

func (p *Provider) handleEvent(evt Event, sess *Session) {
	p.logger.Debug("auth: state change", slog.String("event", string(evt)))
	if evt == EventSignedOut {
		sess = nil
	}
	p.applyMu.Lock()
	defer p.applyMu.Unlock()
	p.eventSeen = true
	p.applyLocked(context.Background(), sess)
}

func (p *Provider) applyLocked(ctx context.Context, sess *Session) {
	var next *Session
	if sess != nil {
		cp := *sess
		cp.User = *sess.User.Clone()
		next = &cp
	}

	p.mu.Lock()
	prevID := ""
	if p.session != nil {
		prevID = p.session.User.ID
	}
	p.session = next
	if next == nil || next.User.ID != prevID {
		p.profile = nil
	}
	listeners := make([]func(*Identity), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	var ident *Identity
	if next != nil {
		ident = &next.User
	}
	for _, fn := range listeners {
		fn(ident.Clone())
	}

	if next != nil {
		p.enrich(ctx, next.User.ID)
	}
}

// enrich refetches the profile on every state change. A failed fetch keeps
// the profile already held for the same user.
func (p *Provider) enrich(ctx context.Context, userID string) {
	if p.profiles == nil {
		return
	}

	fctx, cancel := context.WithTimeout(ctx, p.resolveTimeout)
	defer cancel()
	profile, err := p.profiles.FetchProfile(fctx, userID)
	if err != nil {
		p.logger.Warn("auth: profile fetch failed", slog.String("user_id", userID), slog.Any("error", err))
		return
	}

	p.mu.Lock()
	if p.session != nil && p.session.User.ID == userID {
		p.profile = &profile
	}
	p.mu.Unlock()
}

func (p *Provider) finishLoading() {
	p.mu.Lock()
	p.loading = false
	p.mu.Unlock()
	p.readyOnce.Do(func() { close(p.ready) })
}

// CurrentIdentity returns the last known identity, or nil.
func (p *Provider) CurrentIdentity() *Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return nil
	}
	return p.session.User.Clone()
}

// Session returns a copy of the current session, or nil.
func (p *Provider) Session() *Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return nil
	}
	cp := *p.session
	cp.User = *p.session.User.Clone()
	return &cp
}

// AccessToken returns the bearer token of the current session.
func (p *Provider) AccessToken() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return ""
	}
	return p.session.AccessToken
}

// Profile returns the enriched profile, or nil when absent.
func (p *Provider) Profile() *Profile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.profile == nil {
		return nil
	}
	cp := *p.profile
	return &cp
}

// Loading reports whether the initial resolution is still in flight.
func (p *Provider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// Ready is closed once the initial resolution has finished.
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}

// Subscribe registers fn for identity changes. fn runs on the goroutine
// that applied the change and must not call SignOut synchronously.
func (p *Provider) Subscribe(fn func(*Identity)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// SignOut ends the session at the source and clears identity and profile.
func (p *Provider) SignOut(ctx context.Context) error {
	if so, ok := p.source.(SignOuter); ok {
		if err := so.SignOut(ctx); err != nil {
			return err
		}
	}
	p.applyMu.Lock()
	defer p.applyMu.Unlock()
	p.eventSeen = true
	if p.CurrentIdentity() != nil {
		p.applyLocked(ctx, nil)
	}
	return nil
}

// ResolveIdentity lets the provider back an identity Middleware.
func (p *Provider) ResolveIdentity(*http.Request) (*Identity, error) {
	if ident := p.CurrentIdentity(); ident != nil {
		return ident, nil
	}
	return nil, ErrNoSession
}

// Close detaches from the source. Subscribers are kept but receive nothing
// further.
func (p *Provider) Close() {
	p.closeOnce.Do(func() {
		if p.cancelInit != nil {
			p.cancelInit()
		}
		if p.sourceSub != nil {
			p.sourceSub.Unsubscribe()
		}
	})
}
