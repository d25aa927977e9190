package httpx

import (
	"log/slog"
	"net/http"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/internal/logctx"
	"github.com/labstack/echo/v4/middleware"
)

// AuthMiddleware runs an auth.Middleware in front of echo handlers. The
// resolved identity is available through auth.IdentityFromContext on the
// request context.
func AuthMiddleware(mw *auth.Middleware) MiddlewareFunc {
	if mw == nil {
		return func(next HandlerFunc) HandlerFunc {
			return func(c Context) error {
				return HTTPError(StatusUnauthorized, "auth middleware missing")
			}
		}
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			var err error
			downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				c.SetRequest(r)
				err = next(c)
			})
			mw.Handler(downstream).ServeHTTP(c.Response(), c.Request())
			return err
		}
	}
}

// BodyLimitMiddleware rejects request bodies larger than limit ("4M",
// "512K") with 413.
func BodyLimitMiddleware(limit string) MiddlewareFunc { return middleware.BodyLimit(limit) }

// RequestIDMiddleware assigns an X-Request-Id to every request.
func RequestIDMiddleware() MiddlewareFunc { return middleware.RequestID() }

// LoggerMiddleware logs one line per request and stores a logger tagged
// with the request id in the request context (see logctx.FromContext).
func LoggerMiddleware(logger *slog.Logger) MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	attach := func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			reqLogger := logger
			if id := c.Response().Header().Get(HeaderRequestID); id != "" {
				reqLogger = logger.With(slog.String("request_id", id))
			}
			c.SetRequest(c.Request().WithContext(logctx.WithLogger(c.Request().Context(), reqLogger)))
			return next(c)
		}
	}
	logRequest := middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.RequestID != "" {
				attrs = append(attrs, slog.String("request_id", v.RequestID))
			}
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelWarn
				attrs = append(attrs, slog.Any("error", v.Error))
			}
			logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	})
	return func(next HandlerFunc) HandlerFunc {
		return logRequest(attach(next))
	}
}
