package dashboard

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adeilh/aura/httpx"
	"github.com/adeilh/aura/marketing"
)

func (h *Handler) listCampaigns(c httpx.Context) error {
	q, err := h.svc.Campaigns(queryContext(c))
	return respond(h, c, q, err)
}

func (h *Handler) getCampaign(c httpx.Context) error {
	q, err := h.svc.Campaign(queryContext(c), c.Param("id"))
	return respond(h, c, q, err)
}

func (h *Handler) campaignContent(c httpx.Context) error {
	q, err := h.svc.CampaignContent(queryContext(c), c.Param("id"))
	return respond(h, c, q, err)
}

type campaignRequest struct {
	Name       string `json:"name"`
	Objective  string `json:"objective"`
	ProductID  string `json:"product_id"`
	AudienceID string `json:"audience_id"`
	ExpertID   string `json:"expert_id"`
}

func (h *Handler) createCampaign(c httpx.Context) error {
	var req campaignRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid campaign payload")
	}
	created, err := h.svc.CreateCampaign(c.Request().Context(), marketing.Campaign{
		Name:       strings.TrimSpace(req.Name),
		Objective:  req.Objective,
		ProductID:  req.ProductID,
		AudienceID: req.AudienceID,
		ExpertID:   req.ExpertID,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(httpx.StatusCreated, created)
}

func (h *Handler) deleteCampaign(c httpx.Context) error {
	if err := h.svc.DeleteCampaign(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(httpx.StatusNoContent)
}

func (h *Handler) listAssets(c httpx.Context) error {
	kind, err := marketing.ParseAssetKind(c.Param("kind"))
	if err != nil {
		return h.fail(c, err)
	}
	q, err := h.svc.Assets(queryContext(c), kind)
	return respond(h, c, q, err)
}

// saveAsset takes the flat asset document: id, name and any attribute
// columns side by side.
func (h *Handler) saveAsset(c httpx.Context) error {
	kind, err := marketing.ParseAssetKind(c.Param("kind"))
	if err != nil {
		return h.fail(c, err)
	}
	a := marketing.Asset{Kind: kind}
	if err := json.NewDecoder(c.Request().Body).Decode(&a); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid asset payload")
	}
	a.Kind = kind
	saved, err := h.svc.SaveAsset(c.Request().Context(), a)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(httpx.StatusOK, saved)
}

func (h *Handler) deleteAsset(c httpx.Context) error {
	kind, err := marketing.ParseAssetKind(c.Param("kind"))
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.svc.DeleteAsset(c.Request().Context(), kind, c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(httpx.StatusNoContent)
}

func (h *Handler) listContent(c httpx.Context) error {
	typ, err := marketing.ParseContentType(c.Param("type"))
	if err != nil {
		return h.fail(c, err)
	}
	q, err := h.svc.Content(queryContext(c), typ)
	return respond(h, c, q, err)
}

// deleteContent accepts ?campaign_id= so the campaign's cached listing is
// dropped too.
func (h *Handler) deleteContent(c httpx.Context) error {
	typ, err := marketing.ParseContentType(c.Param("type"))
	if err != nil {
		return h.fail(c, err)
	}
	item := marketing.GeneratedContent{ID: c.Param("id"), Type: typ}
	if id := c.QueryParam("campaign_id"); id != "" {
		item.CampaignID = &id
	}
	if err := h.svc.DeleteContent(c.Request().Context(), item); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(httpx.StatusNoContent)
}

func (h *Handler) getBrandVoice(c httpx.Context) error {
	q, err := h.svc.BrandVoice(queryContext(c))
	return respond(h, c, q, err)
}

type brandVoiceRequest struct {
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
}

func (h *Handler) saveBrandVoice(c httpx.Context) error {
	var req brandVoiceRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid brand voice payload")
	}
	saved, err := h.svc.SaveBrandVoice(c.Request().Context(), marketing.BrandVoice{
		Tags:        req.Tags,
		Description: req.Description,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(httpx.StatusOK, saved)
}

func (h *Handler) listKnowledgeFiles(c httpx.Context) error {
	q, err := h.svc.KnowledgeFiles(queryContext(c))
	return respond(h, c, q, err)
}

type uploadRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// uploadKnowledge sends the document to the content service for ingestion
// and records it in the file list once accepted.
func (h *Handler) uploadKnowledge(c httpx.Context) error {
	if h.generator == nil {
		return h.fail(c, errGenerationDisabled)
	}
	var req uploadRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid upload payload")
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Content) == "" {
		return h.fail(c, fmt.Errorf("%w: document needs a name and content", marketing.ErrInvalidInput))
	}
	ctx := c.Request().Context()
	if _, err := h.generator.UploadKnowledge(ctx, documentFor(req)); err != nil {
		return h.fail(c, err)
	}
	saved, err := h.svc.AddKnowledgeFile(ctx, marketing.KnowledgeFile{
		Name:      req.Name,
		SizeBytes: int64(len(req.Content)),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(httpx.StatusCreated, saved)
}
