package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrTokenNotFound     = errors.New("auth: token not found")
	ErrTokenInvalidInput = errors.New("auth: invalid token source")
	ErrIdentityMismatch  = errors.New("auth: token belongs to another user")
)

type TokenExtractor func(*http.Request) (string, error)

type MiddlewareSkipper func(*http.Request) bool

type MiddlewareErrorHandler func(http.ResponseWriter, *http.Request, error)

type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	resolver     IdentityResolver
	skipper      MiddlewareSkipper
	errorHandler MiddlewareErrorHandler
	tokens       IdentityResolver
}

func newMiddlewareConfig(resolver IdentityResolver, opts ...MiddlewareOption) (middlewareConfig, error) {
	if resolver == nil {
		return middlewareConfig{}, errors.New("auth: middleware requires an identity resolver")
	}
	cfg := middlewareConfig{
		resolver:     resolver,
		skipper:      defaultSkipper,
		errorHandler: defaultErrorHandler,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.skipper == nil {
		cfg.skipper = defaultSkipper
	}
	if cfg.errorHandler == nil {
		cfg.errorHandler = defaultErrorHandler
	}
	if cfg.tokens != nil {
		cfg.resolver = sameUser(cfg.resolver, cfg.tokens)
	}
	return cfg, nil
}

func WithSkipper(skipper MiddlewareSkipper) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if skipper != nil {
			cfg.skipper = skipper
		}
	}
}

func WithErrorHandler(handler MiddlewareErrorHandler) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if handler != nil {
			cfg.errorHandler = handler
		}
	}
}

// WithTokenCheck rejects requests whose access token names a user other
// than the resolved identity. Requests without a token are not affected.
func WithTokenCheck(parser *TokenParser, extractor TokenExtractor) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if parser != nil {
			cfg.tokens = BearerResolver(parser, extractor)
		}
	}
}

func sameUser(base, tokens IdentityResolver) IdentityResolver {
	return IdentityResolverFunc(func(r *http.Request) (*Identity, error) {
		ident, err := base.ResolveIdentity(r)
		if err != nil || ident.IsAnonymous() {
			return ident, err
		}
		claimed, err := tokens.ResolveIdentity(r)
		switch {
		case errors.Is(err, ErrTokenNotFound):
			return ident, nil
		case err != nil:
			return nil, err
		case claimed.ID != ident.ID:
			return nil, ErrIdentityMismatch
		}
		return ident, nil
	})
}

func BearerTokenExtractor() TokenExtractor {
	return func(r *http.Request) (string, error) {
		header := r.Header.Get("Authorization")
		if header == "" {
			return "", ErrTokenNotFound
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", ErrTokenInvalidInput
		}
		token := strings.TrimSpace(parts[1])
		if token == "" {
			return "", ErrTokenInvalidInput
		}
		return token, nil
	}
}

func CookieTokenExtractor(name string) TokenExtractor {
	name = strings.TrimSpace(name)
	return func(r *http.Request) (string, error) {
		if name == "" {
			return "", ErrTokenInvalidInput
		}
		cookie, err := r.Cookie(name)
		if err != nil {
			if errors.Is(err, http.ErrNoCookie) {
				return "", ErrTokenNotFound
			}
			return "", err
		}
		value := strings.TrimSpace(cookie.Value)
		if value == "" {
			return "", ErrTokenInvalidInput
		}
		return value, nil
	}
}

func ChainExtractors(extractors ...TokenExtractor) TokenExtractor {
	copied := append([]TokenExtractor(nil), extractors...)
	return func(r *http.Request) (string, error) {
		var lastErr error = ErrTokenNotFound
		for _, extractor := range copied {
			if extractor == nil {
				continue
			}
			token, err := extractor(r)
			if err == nil {
				return token, nil
			}
			lastErr = err
		}
		return "", lastErr
	}
}

func defaultSkipper(*http.Request) bool { return false }

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusUnauthorized
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
