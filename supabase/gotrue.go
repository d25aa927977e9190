package supabase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/httpx"
)

var ErrEmptySession = errors.New("supabase: identity service returned no session")

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u userResponse) identity() auth.Identity {
	return auth.Identity{ID: u.ID, Email: u.Email, Role: u.Role, Metadata: u.UserMetadata}
}

func (t tokenResponse) session(now time.Time) (*auth.Session, error) {
	if t.AccessToken == "" || t.User.ID == "" {
		return nil, ErrEmptySession
	}
	sess := &auth.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		User:         t.User.identity(),
	}
	switch {
	case t.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(t.ExpiresAt, 0).UTC()
	case t.ExpiresIn > 0:
		sess.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	}
	return sess, nil
}

func (c *Client) token(ctx context.Context, grant string, body any) (*auth.Session, error) {
	var out tokenResponse
	_, err := c.http.Post(ctx, authPrefix+"token", body, &out,
		httpx.WithQuery(map[string]string{"grant_type": grant}),
		httpx.WithBearer(c.anonKey))
	if err != nil {
		return nil, fmt.Errorf("supabase: %s grant: %w", grant, apiError(err))
	}
	return out.session(time.Now())
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	return c.token(ctx, "password", map[string]string{"email": email, "password": password})
}

// RefreshSession trades a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error) {
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if _, err := c.http.Post(ctx, authPrefix+"logout", nil, nil, httpx.WithBearer(accessToken)); err != nil {
		return fmt.Errorf("supabase: logout: %w", apiError(err))
	}
	return nil
}

// GetUser returns the identity behind accessToken as the identity service
// sees it.
func (c *Client) GetUser(ctx context.Context, accessToken string) (auth.Identity, error) {
	var out userResponse
	if _, err := c.http.Get(ctx, authPrefix+"user", &out, httpx.WithBearer(accessToken)); err != nil {
		return auth.Identity{}, fmt.Errorf("supabase: user: %w", apiError(err))
	}
	return out.identity(), nil
}

var _ auth.AuthAPI = (*Client)(nil)
