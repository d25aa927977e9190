package auth

import (
	"context"
	"net/http"
)

// IdentityResolver finds the identity a request acts for.
type IdentityResolver interface {
	ResolveIdentity(r *http.Request) (*Identity, error)
}

// IdentityResolverFunc adapts a function to IdentityResolver.
type IdentityResolverFunc func(*http.Request) (*Identity, error)

func (f IdentityResolverFunc) ResolveIdentity(r *http.Request) (*Identity, error) { return f(r) }

// BearerResolver resolves identities from access tokens carried by the
// request.
func BearerResolver(parser *TokenParser, extractor TokenExtractor) IdentityResolver {
	if extractor == nil {
		extractor = BearerTokenExtractor()
	}
	return IdentityResolverFunc(func(r *http.Request) (*Identity, error) {
		raw, err := extractor(r)
		if err != nil {
			return nil, err
		}
		claims, err := parser.Parse(raw)
		if err != nil {
			return nil, err
		}
		ident := claims.Identity()
		return &ident, nil
	})
}

type Middleware struct {
	resolver     IdentityResolver
	skipper      MiddlewareSkipper
	errorHandler MiddlewareErrorHandler
}

type identityContextKey struct{}

func NewMiddleware(resolver IdentityResolver, opts ...MiddlewareOption) (*Middleware, error) {
	cfg, err := newMiddlewareConfig(resolver, opts...)
	if err != nil {
		return nil, err
	}
	return &Middleware{
		resolver:     cfg.resolver,
		skipper:      cfg.skipper,
		errorHandler: cfg.errorHandler,
	}, nil
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	if m == nil {
		panic("auth: middleware is nil")
	}
	if next == nil {
		next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		ident, err := m.resolver.ResolveIdentity(r)
		if err != nil {
			m.errorHandler(w, r, err)
			return
		}
		if ident.IsAnonymous() {
			m.errorHandler(w, r, ErrNoSession)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
	})
}

// WithIdentity stores ident in ctx.
func WithIdentity(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, ident)
}

// IdentityFromContext returns the identity stored by the middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	ident, ok := ctx.Value(identityContextKey{}).(*Identity)
	return ident, ok && ident != nil
}

// RequireIdentity rejects requests while p has no signed-in identity and
// attaches the identity to the request context otherwise.
func RequireIdentity(p *Provider, opts ...MiddlewareOption) (*Middleware, error) {
	if p == nil {
		return nil, ErrNilSource
	}
	return NewMiddleware(p, opts...)
}
