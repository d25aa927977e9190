package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adeilh/aura/contentapi"
	"github.com/adeilh/aura/httpx"
	"github.com/adeilh/aura/marketing"
)

var errGenerationDisabled = errors.New("dashboard: content generation is not configured")

// Generation kinds accepted by POST /api/generate/:kind.
const (
	GenerateUGC      = "ugc"
	GenerateEmail    = "email"
	GenerateStaticAd = "static-ad"
	GenerateMessage  = "message"
	GenerateContent  = "content"
)

var generatedTypes = map[string]marketing.ContentType{
	GenerateUGC:      marketing.ContentUGC,
	GenerateEmail:    marketing.ContentEmail,
	GenerateStaticAd: marketing.ContentStatic,
	GenerateMessage:  marketing.ContentMessage,
	GenerateContent:  marketing.ContentGeneric,
}

// GenerateRequest carries the inputs of every generation kind; each kind
// reads only the fields it needs.
type GenerateRequest struct {
	CampaignID string `json:"campaign_id"`
	Title      string `json:"title"`
	Style      string `json:"style"`
	Objective  string `json:"objective"`
	Offer      string `json:"offer"`
	Context    string `json:"context"`
	Tone       string `json:"tone"`
	Message    string `json:"message"`
}

// titleFields are tried in order to title saved content.
var titleFields = []string{"subject_line", "headline", "title", "hook"}

func (h *Handler) generate(c httpx.Context) error {
	if h.generator == nil {
		return h.fail(c, errGenerationDisabled)
	}
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid generation payload")
	}
	var userID string
	if ident := h.session.CurrentIdentity(); ident != nil {
		userID = ident.ID
	}
	kind := c.Param("kind")
	saved, err := Generate(c.Request().Context(), h.svc, h.generator, userID, kind, req)
	if err != nil {
		return h.fail(c, err)
	}
	h.logger.Info("content generated",
		slog.String("kind", kind), slog.String("content_id", saved.ID))
	return c.JSON(httpx.StatusCreated, saved)
}

// Generate runs one generation kind against gen and saves the result to
// the content library. userID is forwarded to the content agent.
func Generate(ctx context.Context, svc *marketing.Service, gen Generator, userID, kind string, req GenerateRequest) (marketing.GeneratedContent, error) {
	typ, ok := generatedTypes[kind]
	if !ok {
		return marketing.GeneratedContent{}, fmt.Errorf("%w: unknown generation kind %q", marketing.ErrInvalidInput, kind)
	}
	doc, err := run(ctx, svc, gen, userID, kind, req)
	if err != nil {
		return marketing.GeneratedContent{}, err
	}
	item := marketing.GeneratedContent{
		Type:    typ,
		Title:   req.Title,
		Content: doc,
	}
	if item.Title == "" {
		item.Title = titleOf(doc)
	}
	if req.CampaignID != "" {
		id := req.CampaignID
		item.CampaignID = &id
	}
	return svc.SaveContent(ctx, item)
}

func run(ctx context.Context, svc *marketing.Service, gen Generator, userID, kind string, req GenerateRequest) (json.RawMessage, error) {
	switch kind {
	case GenerateMessage:
		if strings.TrimSpace(req.Context) == "" {
			return nil, fmt.Errorf("%w: context is required", marketing.ErrInvalidInput)
		}
		return gen.Message(ctx, contentapi.MessageRequest{Context: req.Context, Tone: req.Tone})
	case GenerateContent:
		if strings.TrimSpace(req.Message) == "" {
			return nil, fmt.Errorf("%w: message is required", marketing.ErrInvalidInput)
		}
		text, err := gen.Content(ctx, req.Message, userID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"text": text})
	}

	if req.CampaignID == "" {
		return nil, fmt.Errorf("%w: campaign_id is required", marketing.ErrInvalidInput)
	}
	q, err := svc.Campaign(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	campaign, err := settled(ctx, q)
	if err != nil {
		return nil, err
	}
	product, audience, expert := assetNames(campaign)

	switch kind {
	case GenerateUGC:
		style := req.Style
		if style == "" {
			style = "Viral"
		}
		return gen.UGC(ctx, contentapi.UGCRequest{
			Product: product, Audience: audience, Expert: expert, Style: style,
		})
	case GenerateEmail:
		objective := req.Objective
		if objective == "" {
			objective = campaign.Objective
		}
		if objective == "" {
			return nil, fmt.Errorf("%w: objective is required", marketing.ErrInvalidInput)
		}
		return gen.Email(ctx, contentapi.EmailRequest{
			Product: product, Audience: audience, Objective: objective,
		})
	default:
		return gen.StaticAd(ctx, contentapi.StaticAdRequest{
			Product: product, Audience: audience, Offer: req.Offer,
		})
	}
}

// assetNames prefers the expanded assets and falls back to the names
// denormalized on the campaign.
func assetNames(d marketing.CampaignDetail) (product, audience, expert string) {
	product, audience, expert = d.ProductName, d.AudienceName, d.ExpertName
	if d.Product != nil {
		product = d.Product.Name
	}
	if d.Audience != nil {
		audience = d.Audience.Name
	}
	if d.Expert != nil {
		expert = d.Expert.Name
	}
	return product, audience, expert
}

func titleOf(doc json.RawMessage) string {
	var fields map[string]any
	if err := json.Unmarshal(doc, &fields); err != nil {
		return ""
	}
	for _, name := range titleFields {
		if s, ok := fields[name].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func documentFor(req uploadRequest) contentapi.Document {
	meta := map[string]any{}
	if req.Name != "" {
		meta["name"] = req.Name
	}
	return contentapi.Document{Content: req.Content, Metadata: meta}
}
