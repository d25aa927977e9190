// Package dashboard serves the marketing dashboard's backend-for-frontend
// routes. Reads answer with the cached-query snapshot so the UI can render
// the persisted value at once and poll (or pass ?wait=1) for the
// revalidated one.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/contentapi"
	"github.com/adeilh/aura/httpx"
	"github.com/adeilh/aura/marketing"
)

// SessionView is the part of the session provider the dashboard reads.
// *auth.Provider satisfies it.
type SessionView interface {
	CurrentIdentity() *auth.Identity
	Profile() *auth.Profile
	Loading() bool
}

// Generator produces content through the AI content service.
// *contentapi.Client satisfies it.
type Generator interface {
	Content(ctx context.Context, message, userID string) (string, error)
	UGC(ctx context.Context, req contentapi.UGCRequest) (json.RawMessage, error)
	Email(ctx context.Context, req contentapi.EmailRequest) (json.RawMessage, error)
	Message(ctx context.Context, req contentapi.MessageRequest) (json.RawMessage, error)
	StaticAd(ctx context.Context, req contentapi.StaticAdRequest) (json.RawMessage, error)
	UploadKnowledge(ctx context.Context, doc contentapi.Document) (contentapi.UploadResult, error)
}

// Authenticator signs the local user in and out on behalf of the browser.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignOut(ctx context.Context) error
}

type Handler struct {
	svc       *marketing.Service
	session   SessionView
	gate      *auth.Middleware
	generator Generator
	auth      Authenticator
	logger    *slog.Logger
	waitLimit time.Duration
}

type Option func(*Handler)

// WithGate guards every /api route. Without it the routes are open and
// rely on the service's own identity source.
func WithGate(mw *auth.Middleware) Option {
	return func(h *Handler) {
		if mw != nil {
			h.gate = mw
		}
	}
}

// WithGenerator enables the generation and knowledge upload routes.
func WithGenerator(g Generator) Option {
	return func(h *Handler) {
		if g != nil {
			h.generator = g
		}
	}
}

// WithAuthenticator enables POST /auth/login and POST /api/logout.
func WithAuthenticator(a Authenticator) Option {
	return func(h *Handler) {
		if a != nil {
			h.auth = a
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithWaitLimit bounds how long ?wait=1 blocks for a revalidation.
func WithWaitLimit(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.waitLimit = d
		}
	}
}

func New(svc *marketing.Service, session SessionView, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("dashboard: service is nil")
	}
	if session == nil {
		return nil, errors.New("dashboard: session view is nil")
	}
	h := &Handler{
		svc:       svc,
		session:   session,
		logger:    slog.Default(),
		waitLimit: 15 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register mounts the routes. It has the shape of httpx.RouteRegistrar.
func (h *Handler) Register(a *httpx.App) {
	public := []httpx.Route{{Method: http.MethodGet, Path: "/health", Handler: h.health}}
	if h.auth != nil {
		public = append(public, httpx.Route{Method: http.MethodPost, Path: "/auth/login", Handler: h.login})
	}
	httpx.RegisterRoutes(a, public...)

	var mw []httpx.MiddlewareFunc
	if h.gate != nil {
		mw = append(mw, httpx.AuthMiddleware(h.gate))
	}
	api := a.Group("/api", mw...)
	api.GET("/session", h.getSession)
	if h.auth != nil {
		api.POST("/logout", h.logout)
	}
	api.GET("/overview", h.overview)

	api.GET("/campaigns", h.listCampaigns)
	api.POST("/campaigns", h.createCampaign)
	api.GET("/campaigns/:id", h.getCampaign)
	api.DELETE("/campaigns/:id", h.deleteCampaign)
	api.GET("/campaigns/:id/content", h.campaignContent)

	api.GET("/assets/:kind", h.listAssets)
	api.POST("/assets/:kind", h.saveAsset)
	api.DELETE("/assets/:kind/:id", h.deleteAsset)

	api.GET("/content/:type", h.listContent)
	api.DELETE("/content/:type/:id", h.deleteContent)

	api.GET("/brain/voice", h.getBrandVoice)
	api.PUT("/brain/voice", h.saveBrandVoice)
	api.GET("/brain/files", h.listKnowledgeFiles)
	api.POST("/brain/files", h.uploadKnowledge)

	api.POST("/generate/:kind", h.generate)
}

// RequireJSON is an httpx.Validator that rejects request bodies that are
// not JSON with 415.
func RequireJSON(c httpx.Context) error {
	r := c.Request()
	if r.ContentLength == 0 {
		return nil
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil
	}
	if mt, _, err := mime.ParseMediaType(r.Header.Get(httpx.HeaderContentType)); err != nil || mt != "application/json" {
		return httpx.HTTPError(http.StatusUnsupportedMediaType, "request body must be application/json")
	}
	return nil
}

func (h *Handler) health(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, map[string]string{"status": "ok"})
}

type sessionResponse struct {
	Loading  bool           `json:"loading"`
	Identity *auth.Identity `json:"identity"`
	Profile  *auth.Profile  `json:"profile"`
}

func (h *Handler) sessionSnapshot() sessionResponse {
	return sessionResponse{
		Loading:  h.session.Loading(),
		Identity: h.session.CurrentIdentity(),
		Profile:  h.session.Profile(),
	}
}

func (h *Handler) getSession(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, h.sessionSnapshot())
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c httpx.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Password == "" {
		return httpx.HTTPError(httpx.StatusBadRequest, "email and password are required")
	}
	if _, err := h.auth.SignIn(c.Request().Context(), req.Email, req.Password); err != nil {
		h.logger.Warn("dashboard sign-in failed", slog.String("email", req.Email), slog.Any("error", err))
		return httpx.HTTPError(httpx.StatusUnauthorized, "invalid credentials")
	}
	return c.JSON(httpx.StatusOK, h.sessionSnapshot())
}

func (h *Handler) logout(c httpx.Context) error {
	if err := h.auth.SignOut(c.Request().Context()); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(httpx.StatusNoContent)
}
