package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewMiddlewareRequiresResolver(t *testing.T) {
	if _, err := NewMiddleware(nil); err == nil {
		t.Fatalf("expected error when resolver is nil")
	}
}

func TestMiddlewareInjectsIdentityIntoContext(t *testing.T) {
	resolver := IdentityResolverFunc(func(*http.Request) (*Identity, error) {
		return &Identity{ID: "user-1", Email: "ada@example.com"}, nil
	})
	middleware, err := NewMiddleware(resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var invoked bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invoked = true
		ident, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("identity missing from context")
		}
		if ident.ID != "user-1" {
			t.Fatalf("unexpected identity injected: %+v", ident)
		}
	})

	res := httptest.NewRecorder()
	middleware.Handler(next).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))

	if !invoked {
		t.Fatalf("expected next handler to be invoked")
	}
}

func TestMiddlewareRejectsMissingIdentity(t *testing.T) {
	tests := []struct {
		name     string
		resolver IdentityResolver
	}{
		{
			name: "resolver error",
			resolver: IdentityResolverFunc(func(*http.Request) (*Identity, error) {
				return nil, ErrNoSession
			}),
		},
		{
			name: "anonymous identity",
			resolver: IdentityResolverFunc(func(*http.Request) (*Identity, error) {
				return &Identity{}, nil
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware, err := NewMiddleware(tt.resolver)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			res := httptest.NewRecorder()
			next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("next handler must not run")
			})
			middleware.Handler(next).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
			if res.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", res.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestMiddlewareSkipperShortCircuits(t *testing.T) {
	resolver := IdentityResolverFunc(func(*http.Request) (*Identity, error) {
		return nil, errors.New("must not be called")
	})
	middleware, err := NewMiddleware(resolver, WithSkipper(func(*http.Request) bool { return true }))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var invoked bool
	res := httptest.NewRecorder()
	middleware.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { invoked = true })).
		ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !invoked {
		t.Fatalf("expected skipper to bypass identity resolution")
	}
}

func TestBearerResolver(t *testing.T) {
	secret := []byte("super-secret-jwt-key")
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	middleware, err := NewMiddleware(BearerResolver(NewTokenParser(secret), nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	res := httptest.NewRecorder()

	var got string
	middleware.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ident, _ := IdentityFromContext(r.Context())
		got = ident.ID
	})).ServeHTTP(res, req)

	if got != "user-2" {
		t.Fatalf("identity = %q, want user-2", got)
	}

	res = httptest.NewRecorder()
	middleware.Handler(nil).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("missing bearer status = %d", res.Code)
	}
}

func TestIdentityFromContextEmpty(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatalf("expected no identity")
	}
}

func TestTokenCheckRequiresSameUser(t *testing.T) {
	secret := []byte("super-secret-jwt-key")
	sign := func(sub string) string {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   sub,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}).SignedString(secret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return raw
	}
	local := IdentityResolverFunc(func(*http.Request) (*Identity, error) {
		return &Identity{ID: "user-1"}, nil
	})
	middleware, err := NewMiddleware(local, WithTokenCheck(NewTokenParser(secret),
		ChainExtractors(BearerTokenExtractor(), CookieTokenExtractor("sb-access-token"))))
	if err != nil {
		t.Fatalf("NewMiddleware() error = %v", err)
	}
	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"no token", func(*http.Request) {}, http.StatusNoContent},
		{"matching bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+sign("user-1")) }, http.StatusNoContent},
		{"matching cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "sb-access-token", Value: sign("user-1")})
		}, http.StatusNoContent},
		{"other user", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+sign("user-2")) }, http.StatusUnauthorized},
		{"garbage token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != tc.status {
				t.Fatalf("status = %d, want %d", res.Code, tc.status)
			}
		})
	}
}
