package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("auth: invalid access token")

// AccessClaims are the claims the identity service puts in access tokens.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email,omitempty"`
	Role         string         `json:"role,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Identity maps the claims onto an Identity.
func (c *AccessClaims) Identity() Identity {
	return Identity{
		ID:       c.Subject,
		Email:    c.Email,
		Role:     c.Role,
		Metadata: c.UserMetadata,
	}
}

// ExpiresAtTime returns the expiry or the zero time.
func (c *AccessClaims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// TokenParser reads access tokens. With a secret it verifies HS256
// signatures and expiry; without one it only decodes the claims, which is
// what a client holding tokens it did not mint can do.
type TokenParser struct {
	secret []byte
	parser *jwt.Parser
}

type TokenParserOption func(*tokenParserConfig)

type tokenParserConfig struct {
	leeway   time.Duration
	audience string
	now      func() time.Time
}

// WithLeeway tolerates clock skew when checking exp and nbf.
func WithLeeway(d time.Duration) TokenParserOption {
	return func(c *tokenParserConfig) {
		if d > 0 {
			c.leeway = d
		}
	}
}

// WithAudience requires the aud claim to contain audience.
func WithAudience(audience string) TokenParserOption {
	return func(c *tokenParserConfig) {
		c.audience = audience
	}
}

func withParserClock(now func() time.Time) TokenParserOption {
	return func(c *tokenParserConfig) {
		if now != nil {
			c.now = now
		}
	}
}

func NewTokenParser(secret []byte, opts ...TokenParserOption) *TokenParser {
	cfg := tokenParserConfig{leeway: 30 * time.Second, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.leeway),
		jwt.WithTimeFunc(cfg.now),
		jwt.WithExpirationRequired(),
	}
	if cfg.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.audience))
	}
	return &TokenParser{
		secret: append([]byte(nil), secret...),
		parser: jwt.NewParser(parserOpts...),
	}
}

// Parse returns the claims of raw.
func (p *TokenParser) Parse(raw string) (*AccessClaims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	claims := &AccessClaims{}
	if len(p.secret) == 0 {
		if _, _, err := p.parser.ParseUnverified(raw, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	} else {
		_, err := p.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return p.secret, nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return nil, ErrSessionExpired
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// SessionFromToken builds a Session whose identity and expiry come from the
// access token claims.
func (p *TokenParser) SessionFromToken(accessToken, refreshToken string) (*Session, error) {
	claims, err := p.Parse(accessToken)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    claims.ExpiresAtTime(),
		User:         claims.Identity(),
	}, nil
}
