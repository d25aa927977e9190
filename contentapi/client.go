// Package contentapi is the client for the AI content service that writes
// copy, scripts and ads and ingests documents into the brand knowledge base.
package contentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adeilh/aura/httpx"
	"golang.org/x/time/rate"
)

var (
	ErrMissingURL    = errors.New("contentapi: base URL is required")
	ErrEmptyResponse = errors.New("contentapi: empty response")
)

const (
	pathContent   = "/api/content"
	pathChat      = "/api/chat"
	pathAnalytics = "/api/analytics"
	pathUGC       = "/api/ugc"
	pathEmail     = "/api/email"
	pathMessage   = "/api/message"
	pathStaticAd  = "/api/static-ad"
	pathUpload    = "/api/brain/upload"
	pathHealth    = "/health"

	defaultUserID = "default"
)

type Config struct {
	URL     string
	Timeout time.Duration
	// RatePerSecond caps outgoing requests; zero disables the limit.
	RatePerSecond float64
	Burst         int
}

type Client struct {
	http    *httpx.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, ErrMissingURL
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	c := &Client{
		http: httpx.NewClient(
			httpx.WithBaseURL(base),
			httpx.WithClientTimeout(cfg.Timeout),
			httpx.WithHeaders(map[string]string{"Content-Type": "application/json"}),
		),
		limiter: limiter,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type agentRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

type agentResponse struct {
	Response string `json:"response"`
}

// UGCRequest describes a short video script to write.
type UGCRequest struct {
	Product  string `json:"product_name"`
	Audience string `json:"audience_name"`
	Expert   string `json:"expert_name"`
	Style    string `json:"style"`
}

type EmailRequest struct {
	Product   string `json:"product_name"`
	Audience  string `json:"audience_name"`
	Objective string `json:"objective"`
}

type MessageRequest struct {
	Context string `json:"context"`
	Tone    string `json:"tone"`
}

type StaticAdRequest struct {
	Product  string `json:"product_name"`
	Audience string `json:"audience_name"`
	Offer    string `json:"offer"`
}

// Document is text ingested into the knowledge base.
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

type UploadResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Content asks the editor agent for copy in the voice learned for userID.
// An empty userID uses the shared profile.
func (c *Client) Content(ctx context.Context, message, userID string) (string, error) {
	if userID == "" {
		userID = defaultUserID
	}
	return c.agent(ctx, "content", pathContent, agentRequest{Message: message, UserID: userID})
}

func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	return c.agent(ctx, "chat", pathChat, agentRequest{Message: message})
}

// Analytics asks the market analyst agent a question.
func (c *Client) Analytics(ctx context.Context, message string) (string, error) {
	return c.agent(ctx, "analytics", pathAnalytics, agentRequest{Message: message})
}

// UGC returns the generated script as the JSON document the service
// produced.
func (c *Client) UGC(ctx context.Context, req UGCRequest) (json.RawMessage, error) {
	return c.document(ctx, "ugc", pathUGC, req)
}

func (c *Client) Email(ctx context.Context, req EmailRequest) (json.RawMessage, error) {
	return c.document(ctx, "email", pathEmail, req)
}

func (c *Client) Message(ctx context.Context, req MessageRequest) (json.RawMessage, error) {
	return c.document(ctx, "message", pathMessage, req)
}

func (c *Client) StaticAd(ctx context.Context, req StaticAdRequest) (json.RawMessage, error) {
	return c.document(ctx, "static ad", pathStaticAd, req)
}

// UploadKnowledge ingests doc. A reply with status "error" is reported as
// an error carrying the service's message.
func (c *Client) UploadKnowledge(ctx context.Context, doc Document) (UploadResult, error) {
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	raw, err := c.post(ctx, "upload", pathUpload, doc)
	if err != nil {
		return UploadResult{}, err
	}
	var res UploadResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return UploadResult{}, fmt.Errorf("contentapi: upload: decode: %w", err)
	}
	if res.Status == "error" {
		return res, fmt.Errorf("contentapi: upload: %s", res.Message)
	}
	return res, nil
}

func (c *Client) Health(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
	}
	if _, err := c.http.Get(ctx, pathHealth, &body); err != nil {
		return fmt.Errorf("contentapi: health: %w", err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("contentapi: health: status %q", body.Status)
	}
	return nil
}

func (c *Client) agent(ctx context.Context, op, path string, req agentRequest) (string, error) {
	raw, err := c.post(ctx, op, path, req)
	if err != nil {
		return "", err
	}
	var res agentResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("contentapi: %s: decode: %w", op, err)
	}
	if res.Response == "" {
		return "", fmt.Errorf("contentapi: %s: %w", op, ErrEmptyResponse)
	}
	return res.Response, nil
}

func (c *Client) document(ctx context.Context, op, path string, req any) (json.RawMessage, error) {
	raw, err := c.post(ctx, op, path, req)
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("contentapi: %s: response is not JSON", op)
	}
	return raw, nil
}

func (c *Client) post(ctx context.Context, op, path string, body any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("contentapi: %s: %w", op, err)
	}
	start := time.Now()
	resp, err := c.http.Post(ctx, path, body, nil)
	if err != nil {
		c.logger.Warn("content api call failed", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("contentapi: %s: %w", op, err)
	}
	c.logger.Debug("content api call", slog.String("op", op), slog.Duration("latency", time.Since(start)))
	raw := bytes.TrimSpace(resp.Body())
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("contentapi: %s: %w", op, ErrEmptyResponse)
	}
	return json.RawMessage(raw), nil
}
