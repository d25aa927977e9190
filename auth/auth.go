package auth

import (
	"context"
	"errors"
	"maps"
	"time"
)

var (
	ErrNoSession      = errors.New("auth: no active session")
	ErrSessionExpired = errors.New("auth: session expired")
	ErrInvalidSession = errors.New("auth: invalid session")
	ErrNilSource      = errors.New("auth: identity source is nil")
)

// Identity is the authenticated principal of the current session.
type Identity struct {
	ID       string         `json:"id"`
	Email    string         `json:"email,omitempty"`
	Role     string         `json:"role,omitempty"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// IsAnonymous reports whether the identity carries no principal.
func (i *Identity) IsAnonymous() bool {
	return i == nil || i.ID == ""
}

// Clone returns a deep copy of the identity.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	if i.Metadata != nil {
		out.Metadata = maps.Clone(i.Metadata)
	}
	return &out
}

// Session is what the identity service hands back after sign-in. It is
// persisted so a restarted process resumes the same identity.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}

// IsExpired reports whether the access token is expired at the given time,
// treating tokens within skew of expiry as expired.
func (s *Session) IsExpired(at time.Time, skew time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !at.Add(skew).Before(s.ExpiresAt)
}

func (s *Session) validate() error {
	if s == nil || s.AccessToken == "" || s.User.ID == "" {
		return ErrInvalidSession
	}
	return nil
}

// Profile is the extended account record kept by the data service.
type Profile struct {
	ID               string `json:"id"`
	FullName         string `json:"full_name,omitempty"`
	AvatarURL        string `json:"avatar_url,omitempty"`
	SubscriptionTier string `json:"subscription_tier,omitempty"`
}

// Event names an identity transition pushed by a Source.
type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

// Subscription stops delivery of source events when Unsubscribe is called.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() {
	if f != nil {
		f()
	}
}

// Source is the external identity service.
//
// CurrentSession returns (nil, nil) when nobody is signed in.
type Source interface {
	CurrentSession(ctx context.Context) (*Session, error)
	OnAuthStateChange(fn func(Event, *Session)) Subscription
}

// SignOuter is implemented by sources that can end the current session.
type SignOuter interface {
	SignOut(ctx context.Context) error
}

// ProfileFetcher loads the extended profile of a user.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, userID string) (Profile, error)
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
