// Package supabase talks to the hosted database service over its REST
// surface: PostgREST for rows and GoTrue for sessions. Client implements
// marketing.Repository, auth.AuthAPI and auth.ProfileFetcher.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adeilh/aura/httpx"
	"github.com/adeilh/aura/marketing"
)

var (
	ErrMissingURL     = errors.New("supabase: project URL is required")
	ErrMissingAnonKey = errors.New("supabase: anon key is required")
)

const (
	restPrefix = "/rest/v1/"
	authPrefix = "/auth/v1/"
)

// TokenSource yields the signed-in user's access token, or "" when nobody
// is signed in. *auth.Provider satisfies it.
type TokenSource interface {
	AccessToken() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) AccessToken() string { return f() }

type Config struct {
	URL     string
	AnonKey string
	Timeout time.Duration
}

type Client struct {
	http    *httpx.Client
	anonKey string
	tokens  TokenSource
	logger  *slog.Logger
}

type Option func(*Client)

// WithTokenSource authenticates row requests as the signed-in user.
// Without it requests carry only the anon key.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		if ts != nil {
			c.tokens = ts
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrMissingURL
	}
	if cfg.AnonKey == "" {
		return nil, ErrMissingAnonKey
	}
	c := &Client{
		http: httpx.NewClient(
			httpx.WithBaseURL(strings.TrimRight(cfg.URL, "/")),
			httpx.WithClientTimeout(cfg.Timeout),
			httpx.WithHeaders(map[string]string{
				"Content-Type": "application/json",
				"apikey":       cfg.AnonKey,
			}),
		),
		anonKey: cfg.AnonKey,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// SetTokenSource swaps the token source after construction, for callers
// whose provider is built from this client.
func (c *Client) SetTokenSource(ts TokenSource) { c.tokens = ts }

func (c *Client) bearer() httpx.RequestOption {
	token := ""
	if c.tokens != nil {
		token = c.tokens.AccessToken()
	}
	if token == "" {
		token = c.anonKey
	}
	return httpx.WithBearer(token)
}

// APIError is a non-2xx answer from either API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: %d: %s", e.Status, e.Message)
}

// errorBody covers the PostgREST and GoTrue error shapes.
type errorBody struct {
	Code             any    `json:"code"`
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
}

func apiError(err error) error {
	var se *httpx.StatusError
	if !errors.As(err, &se) {
		return err
	}
	out := &APIError{Status: se.Code}
	var body errorBody
	if json.Unmarshal(se.Body, &body) == nil {
		switch code := body.Code.(type) {
		case string:
			out.Code = code
		case float64:
			out.Code = fmt.Sprintf("%d", int(code))
		}
		if body.ErrorCode != "" {
			out.Code = body.ErrorCode
		}
		for _, m := range []string{body.Message, body.Msg, body.ErrorDescription, body.Error} {
			if m != "" {
				out.Message = m
				break
			}
		}
	}
	if out.Message == "" {
		out.Message = strings.TrimSpace(string(se.Body))
	}
	return out
}

// translate maps API failures onto the marketing sentinel errors while
// keeping the APIError reachable with errors.As.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	err = apiError(err)
	var ae *APIError
	if errors.As(err, &ae) {
		switch {
		case ae.Status == 404 || ae.Code == "PGRST116":
			return fmt.Errorf("supabase: %s: %w: %w", op, marketing.ErrNotFound, err)
		case ae.Status == 409 || ae.Code == "23505":
			return fmt.Errorf("supabase: %s: %w: %w", op, marketing.ErrConflict, err)
		case ae.Code == "22P02" || ae.Code == "23502" || ae.Code == "23503":
			return fmt.Errorf("supabase: %s: %w: %w", op, marketing.ErrInvalidInput, err)
		}
	}
	return fmt.Errorf("supabase: %s: %w", op, err)
}

// Health checks that the REST gateway answers.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.http.Get(ctx, authPrefix+"health", nil)
	if err != nil {
		return fmt.Errorf("supabase: health: %w", apiError(err))
	}
	return nil
}
