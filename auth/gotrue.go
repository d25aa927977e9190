package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// AuthAPI is the subset of the hosted identity service's REST API the
// GoTrueSource needs.
type AuthAPI interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// GoTrueSource is a Source backed by the hosted identity service. The
// session lives in a CacheSessionStore and is refreshed on read when the
// access token is about to expire.
type GoTrueSource struct {
	api      AuthAPI
	sessions *CacheSessionStore
	logger   *slog.Logger
	now      func() time.Time
	skew     time.Duration

	mu        sync.Mutex
	listeners map[uint64]func(Event, *Session)
	nextID    uint64
	// guards concurrent refreshes of the same refresh token
	refreshMu sync.Mutex
}

var (
	_ Source    = (*GoTrueSource)(nil)
	_ SignOuter = (*GoTrueSource)(nil)
)

type SourceOption func(*GoTrueSource)

func WithSourceLogger(logger *slog.Logger) SourceOption {
	return func(s *GoTrueSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRefreshSkew refreshes tokens this long before they expire.
func WithRefreshSkew(d time.Duration) SourceOption {
	return func(s *GoTrueSource) {
		if d >= 0 {
			s.skew = d
		}
	}
}

func withSourceClock(now func() time.Time) SourceOption {
	return func(s *GoTrueSource) {
		if now != nil {
			s.now = now
		}
	}
}

func NewGoTrueSource(api AuthAPI, sessions *CacheSessionStore, opts ...SourceOption) *GoTrueSource {
	s := &GoTrueSource{
		api:       api,
		sessions:  sessions,
		logger:    slog.Default(),
		now:       time.Now,
		skew:      time.Minute,
		listeners: make(map[uint64]func(Event, *Session)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *GoTrueSource) CurrentSession(ctx context.Context) (*Session, error) {
	sess, err := s.sessions.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSession) || errors.Is(err, ErrInvalidSession) {
			return nil, nil
		}
		return nil, err
	}
	if !sess.IsExpired(s.now(), s.skew) {
		return sess, nil
	}
	return s.refresh(ctx, sess)
}

// Refresh exchanges the stored refresh token for a new session.
func (s *GoTrueSource) Refresh(ctx context.Context) (*Session, error) {
	sess, err := s.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, sess)
}

func (s *GoTrueSource) refresh(ctx context.Context, stale *Session) (*Session, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if current, err := s.sessions.Load(ctx); err == nil && current.AccessToken != stale.AccessToken {
		return current, nil
	}
	if stale.RefreshToken == "" {
		_ = s.sessions.Clear(ctx)
		s.emit(EventSignedOut, nil)
		return nil, ErrSessionExpired
	}

	fresh, err := s.api.RefreshSession(ctx, stale.RefreshToken)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, fresh); err != nil {
		return nil, err
	}
	s.emit(EventTokenRefreshed, fresh)
	return fresh, nil
}

// SignIn authenticates with email and password and persists the session.
func (s *GoTrueSource) SignIn(ctx context.Context, email, password string) (*Session, error) {
	sess, err := s.api.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	s.emit(EventSignedIn, sess)
	return sess, nil
}

// SignOut revokes the session remotely when possible and always forgets it
// locally.
func (s *GoTrueSource) SignOut(ctx context.Context) error {
	sess, err := s.sessions.Load(ctx)
	if err != nil && !errors.Is(err, ErrNoSession) && !errors.Is(err, ErrInvalidSession) {
		return err
	}
	if sess != nil {
		if err := s.api.SignOut(ctx, sess.AccessToken); err != nil {
			s.logger.Warn("auth: remote sign-out failed", slog.Any("error", err))
		}
	}
	if err := s.sessions.Clear(ctx); err != nil {
		return err
	}
	s.emit(EventSignedOut, nil)
	return nil
}

func (s *GoTrueSource) OnAuthStateChange(fn func(Event, *Session)) Subscription {
	if fn == nil {
		return SubscriptionFunc(nil)
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	})
}

func (s *GoTrueSource) emit(evt Event, sess *Session) {
	s.mu.Lock()
	listeners := make([]func(Event, *Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		var cp *Session
		if sess != nil {
			c := *sess
			cp = &c
		}
		fn(evt, cp)
	}
}
