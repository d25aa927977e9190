package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/httpx"
	"github.com/adeilh/aura/marketing"
)

const (
	tableCampaigns = "campaigns"
	tableContent   = "generated_content"
	tableFiles     = "knowledge_files"
	tableVoices    = "brand_voices"
	tableProfiles  = "profiles"

	preferRepresentation = "return=representation"
	preferUpsert         = "resolution=merge-duplicates,return=representation"
)

func eq(v string) string { return "eq." + v }

type nameRef struct {
	Name string `json:"name"`
}

type campaignRow struct {
	marketing.Campaign
	Products  *nameRef `json:"products"`
	Audiences *nameRef `json:"audiences"`
	Experts   *nameRef `json:"experts"`
}

func (r campaignRow) campaign() marketing.Campaign {
	c := r.Campaign
	if r.Products != nil {
		c.ProductName = r.Products.Name
	}
	if r.Audiences != nil {
		c.AudienceName = r.Audiences.Name
	}
	if r.Experts != nil {
		c.ExpertName = r.Experts.Name
	}
	return c
}

type campaignDetailRow struct {
	marketing.Campaign
	Products  *marketing.Asset `json:"products"`
	Audiences *marketing.Asset `json:"audiences"`
	Experts   *marketing.Asset `json:"experts"`
}

func (r campaignDetailRow) detail() marketing.CampaignDetail {
	d := marketing.CampaignDetail{Campaign: r.Campaign}
	if r.Products != nil {
		r.Products.Kind = marketing.KindProducts
		d.Product, d.ProductName = r.Products, r.Products.Name
	}
	if r.Audiences != nil {
		r.Audiences.Kind = marketing.KindAudiences
		d.Audience, d.AudienceName = r.Audiences, r.Audiences.Name
	}
	if r.Experts != nil {
		r.Experts.Kind = marketing.KindExperts
		d.Expert, d.ExpertName = r.Experts, r.Experts.Name
	}
	return d
}

// campaignInsert carries only the columns of the campaigns table.
type campaignInsert struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Objective  string    `json:"objective,omitempty"`
	ProductID  string    `json:"product_id"`
	AudienceID string    `json:"audience_id"`
	ExpertID   string    `json:"expert_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type contentRow struct {
	marketing.GeneratedContent
	Campaigns *nameRef `json:"campaigns"`
}

type contentInsert struct {
	ID         string                `json:"id"`
	UserID     string                `json:"user_id"`
	CampaignID *string               `json:"campaign_id"`
	Type       marketing.ContentType `json:"type"`
	Title      string                `json:"title"`
	Content    json.RawMessage       `json:"content"`
	CreatedAt  time.Time             `json:"created_at"`
}

func (c *Client) ListCampaigns(ctx context.Context) ([]marketing.Campaign, error) {
	var rows []campaignRow
	_, err := c.http.Get(ctx, restPrefix+tableCampaigns, &rows, c.bearer(),
		httpx.WithQuery(map[string]string{
			"select": "*,products(name),audiences(name),experts(name)",
			"order":  "created_at.desc",
		}))
	if err != nil {
		return nil, translate("list campaigns", err)
	}
	out := make([]marketing.Campaign, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.campaign())
	}
	return out, nil
}

func (c *Client) GetCampaign(ctx context.Context, id string) (marketing.CampaignDetail, error) {
	var rows []campaignDetailRow
	_, err := c.http.Get(ctx, restPrefix+tableCampaigns, &rows, c.bearer(),
		httpx.WithQuery(map[string]string{
			"select": "*,products(*),audiences(*),experts(*)",
			"id":     eq(id),
			"limit":  "1",
		}))
	if err != nil {
		return marketing.CampaignDetail{}, translate("get campaign", err)
	}
	if len(rows) == 0 {
		return marketing.CampaignDetail{}, fmt.Errorf("supabase: campaign %s: %w", id, marketing.ErrNotFound)
	}
	return rows[0].detail(), nil
}

func (c *Client) CreateCampaign(ctx context.Context, in marketing.Campaign) (marketing.Campaign, error) {
	payload := campaignInsert{
		ID:         in.ID,
		UserID:     in.UserID,
		Name:       in.Name,
		Status:     in.Status,
		Objective:  in.Objective,
		ProductID:  in.ProductID,
		AudienceID: in.AudienceID,
		ExpertID:   in.ExpertID,
		CreatedAt:  in.CreatedAt,
	}
	var rows []campaignRow
	_, err := c.http.Post(ctx, restPrefix+tableCampaigns, []campaignInsert{payload}, &rows, c.bearer(),
		httpx.WithHeader("Prefer", preferRepresentation),
		httpx.WithQuery(map[string]string{"select": "*,products(name),audiences(name),experts(name)"}))
	if err != nil {
		return marketing.Campaign{}, translate("create campaign", err)
	}
	if len(rows) == 0 {
		return in, nil
	}
	return rows[0].campaign(), nil
}

func (c *Client) DeleteCampaign(ctx context.Context, id string) error {
	return c.deleteByID(ctx, tableCampaigns, id)
}

func (c *Client) deleteByID(ctx context.Context, table, id string) error {
	var rows []json.RawMessage
	_, err := c.http.Delete(ctx, restPrefix+table, &rows, c.bearer(),
		httpx.WithHeader("Prefer", preferRepresentation),
		httpx.WithQuery(map[string]string{"id": eq(id)}))
	if err != nil {
		return translate("delete from "+table, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("supabase: %s %s: %w", table, id, marketing.ErrNotFound)
	}
	return nil
}

func (c *Client) ListAssets(ctx context.Context, kind marketing.AssetKind) ([]marketing.Asset, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown asset kind %q", marketing.ErrInvalidInput, kind)
	}
	var rows []marketing.Asset
	_, err := c.http.Get(ctx, restPrefix+string(kind), &rows, c.bearer(),
		httpx.WithQuery(map[string]string{"select": "*", "order": "created_at.desc"}))
	if err != nil {
		return nil, translate("list "+string(kind), err)
	}
	for i := range rows {
		rows[i].Kind = kind
	}
	if rows == nil {
		rows = []marketing.Asset{}
	}
	return rows, nil
}

// SaveAsset updates a in place when it already exists and inserts it
// otherwise.
func (c *Client) SaveAsset(ctx context.Context, a marketing.Asset) (marketing.Asset, error) {
	if !a.Kind.Valid() {
		return marketing.Asset{}, fmt.Errorf("%w: unknown asset kind %q", marketing.ErrInvalidInput, a.Kind)
	}
	path := restPrefix + string(a.Kind)
	var rows []marketing.Asset
	var err error
	if a.ID != "" {
		_, err = c.http.Patch(ctx, path, a, &rows, c.bearer(),
			httpx.WithHeader("Prefer", preferRepresentation),
			httpx.WithQuery(map[string]string{"id": eq(a.ID)}))
		if err == nil && len(rows) > 0 {
			rows[0].Kind = a.Kind
			return rows[0], nil
		}
		if err != nil {
			return marketing.Asset{}, translate("update "+string(a.Kind), err)
		}
	}
	_, err = c.http.Post(ctx, path, []marketing.Asset{a}, &rows, c.bearer(),
		httpx.WithHeader("Prefer", preferRepresentation))
	if err != nil {
		return marketing.Asset{}, translate("insert "+string(a.Kind), err)
	}
	if len(rows) == 0 {
		return a, nil
	}
	rows[0].Kind = a.Kind
	return rows[0], nil
}

func (c *Client) DeleteAsset(ctx context.Context, kind marketing.AssetKind, id string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown asset kind %q", marketing.ErrInvalidInput, kind)
	}
	return c.deleteByID(ctx, string(kind), id)
}

func (c *Client) ListContent(ctx context.Context, filter marketing.ContentFilter) ([]marketing.GeneratedContent, error) {
	params := map[string]string{
		"select": "*,campaigns(name)",
		"order":  "created_at.desc",
	}
	if filter.Type != "" {
		params["type"] = eq(string(filter.Type))
	}
	if filter.CampaignID != "" {
		params["campaign_id"] = eq(filter.CampaignID)
	}
	var rows []contentRow
	if _, err := c.http.Get(ctx, restPrefix+tableContent, &rows, c.bearer(), httpx.WithQuery(params)); err != nil {
		return nil, translate("list content", err)
	}
	out := make([]marketing.GeneratedContent, 0, len(rows))
	for _, r := range rows {
		item := r.GeneratedContent
		if r.Campaigns != nil {
			item.CampaignName = r.Campaigns.Name
		}
		out = append(out, item)
	}
	return out, nil
}

func (c *Client) InsertContent(ctx context.Context, in marketing.GeneratedContent) (marketing.GeneratedContent, error) {
	payload := contentInsert{
		ID:         in.ID,
		UserID:     in.UserID,
		CampaignID: in.CampaignID,
		Type:       in.Type,
		Title:      in.Title,
		Content:    in.Content,
		CreatedAt:  in.CreatedAt,
	}
	var rows []marketing.GeneratedContent
	_, err := c.http.Post(ctx, restPrefix+tableContent, []contentInsert{payload}, &rows, c.bearer(),
		httpx.WithHeader("Prefer", preferRepresentation))
	if err != nil {
		return marketing.GeneratedContent{}, translate("insert content", err)
	}
	if len(rows) == 0 {
		return in, nil
	}
	return rows[0], nil
}

func (c *Client) DeleteContent(ctx context.Context, id string) error {
	return c.deleteByID(ctx, tableContent, id)
}

func (c *Client) ListKnowledgeFiles(ctx context.Context) ([]marketing.KnowledgeFile, error) {
	rows := []marketing.KnowledgeFile{}
	_, err := c.http.Get(ctx, restPrefix+tableFiles, &rows, c.bearer(),
		httpx.WithQuery(map[string]string{"select": "*", "order": "created_at.desc"}))
	if err != nil {
		return nil, translate("list knowledge files", err)
	}
	return rows, nil
}

func (c *Client) AddKnowledgeFile(ctx context.Context, f marketing.KnowledgeFile) (marketing.KnowledgeFile, error) {
	var rows []marketing.KnowledgeFile
	_, err := c.http.Post(ctx, restPrefix+tableFiles, []marketing.KnowledgeFile{f}, &rows, c.bearer(),
		httpx.WithHeader("Prefer", preferRepresentation))
	if err != nil {
		return marketing.KnowledgeFile{}, translate("add knowledge file", err)
	}
	if len(rows) == 0 {
		return f, nil
	}
	return rows[0], nil
}

func (c *Client) GetBrandVoice(ctx context.Context) (marketing.BrandVoice, error) {
	owner, err := marketing.OwnerID(ctx)
	if err != nil {
		return marketing.BrandVoice{}, err
	}
	var rows []marketing.BrandVoice
	_, err = c.http.Get(ctx, restPrefix+tableVoices, &rows, c.bearer(),
		httpx.WithQuery(map[string]string{"select": "*", "user_id": eq(owner), "limit": "1"}))
	if err != nil {
		return marketing.BrandVoice{}, translate("get brand voice", err)
	}
	if len(rows) == 0 {
		return marketing.BrandVoice{UserID: owner, Tags: []string{}}, nil
	}
	return rows[0], nil
}

func (c *Client) SaveBrandVoice(ctx context.Context, v marketing.BrandVoice) (marketing.BrandVoice, error) {
	var rows []marketing.BrandVoice
	_, err := c.http.Post(ctx, restPrefix+tableVoices, []marketing.BrandVoice{v}, &rows, c.bearer(),
		httpx.WithHeader("Prefer", preferUpsert),
		httpx.WithQuery(map[string]string{"on_conflict": "user_id"}))
	if err != nil {
		return marketing.BrandVoice{}, translate("save brand voice", err)
	}
	if len(rows) == 0 {
		return v, nil
	}
	return rows[0], nil
}

// FetchProfile loads the profiles row of userID.
func (c *Client) FetchProfile(ctx context.Context, userID string) (auth.Profile, error) {
	var rows []auth.Profile
	_, err := c.http.Get(ctx, restPrefix+tableProfiles, &rows, c.bearer(),
		httpx.WithQuery(map[string]string{"select": "*", "id": eq(userID), "limit": "1"}))
	if err != nil {
		return auth.Profile{}, translate("get profile", err)
	}
	if len(rows) == 0 {
		return auth.Profile{}, fmt.Errorf("supabase: profile %s: %w", userID, marketing.ErrNotFound)
	}
	return rows[0], nil
}

var (
	_ marketing.Repository = (*Client)(nil)
	_ auth.ProfileFetcher  = (*Client)(nil)
)
