// Package marketingtest provides an in-memory marketing.Repository for
// tests.
package marketingtest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/adeilh/aura/marketing"
)

// Repository keeps records in maps keyed by id and scopes every call to
// the owner in ctx. The zero value is not usable; call New.
type Repository struct {
	mu        sync.Mutex
	campaigns map[string]marketing.Campaign
	assets    map[marketing.AssetKind]map[string]marketing.Asset
	content   map[string]marketing.GeneratedContent
	files     map[string]marketing.KnowledgeFile
	voices    map[string]marketing.BrandVoice

	calls map[string]int
	// Err, when set, is returned by every call.
	Err error
}

func New() *Repository {
	r := &Repository{
		campaigns: make(map[string]marketing.Campaign),
		assets:    make(map[marketing.AssetKind]map[string]marketing.Asset),
		content:   make(map[string]marketing.GeneratedContent),
		files:     make(map[string]marketing.KnowledgeFile),
		voices:    make(map[string]marketing.BrandVoice),
		calls:     make(map[string]int),
	}
	for _, k := range marketing.AssetKinds() {
		r.assets[k] = make(map[string]marketing.Asset)
	}
	return r
}

// Calls reports how many times method was invoked.
func (r *Repository) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func (r *Repository) SetErr(err error) {
	r.mu.Lock()
	r.Err = err
	r.mu.Unlock()
}

func (r *Repository) AddKnowledgeFile(ctx context.Context, f marketing.KnowledgeFile) (marketing.KnowledgeFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.enter(ctx, "AddKnowledgeFile"); err != nil {
		return marketing.KnowledgeFile{}, err
	}
	r.files[f.ID] = f
	return f, nil
}

func (r *Repository) enter(ctx context.Context, method string) (string, error) {
	r.calls[method]++
	if r.Err != nil {
		return "", r.Err
	}
	return marketing.OwnerID(ctx)
}

func (r *Repository) ListCampaigns(ctx context.Context) ([]marketing.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, err := r.enter(ctx, "ListCampaigns")
	if err != nil {
		return nil, err
	}
	out := []marketing.Campaign{}
	for _, c := range r.campaigns {
		if c.UserID == owner {
			out = append(out, r.named(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) named(c marketing.Campaign) marketing.Campaign {
	c.ProductName = r.assets[marketing.KindProducts][c.ProductID].Name
	c.AudienceName = r.assets[marketing.KindAudiences][c.AudienceID].Name
	c.ExpertName = r.assets[marketing.KindExperts][c.ExpertID].Name
	return c
}

func (r *Repository) GetCampaign(ctx context.Context, id string) (marketing.CampaignDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, err := r.enter(ctx, "GetCampaign")
	if err != nil {
		return marketing.CampaignDetail{}, err
	}
	c, ok := r.campaigns[id]
	if !ok || c.UserID != owner {
		return marketing.CampaignDetail{}, marketing.ErrNotFound
	}
	detail := marketing.CampaignDetail{Campaign: r.named(c)}
	if a, ok := r.assets[marketing.KindProducts][c.ProductID]; ok {
		detail.Product = &a
	}
	if a, ok := r.assets[marketing.KindAudiences][c.AudienceID]; ok {
		detail.Audience = &a
	}
	if a, ok := r.assets[marketing.KindExperts][c.ExpertID]; ok {
		detail.Expert = &a
	}
	return detail, nil
}

func (r *Repository) CreateCampaign(ctx context.Context, c marketing.Campaign) (marketing.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.enter(ctx, "CreateCampaign"); err != nil {
		return marketing.Campaign{}, err
	}
	if _, exists := r.campaigns[c.ID]; exists {
		return marketing.Campaign{}, marketing.ErrConflict
	}
	r.campaigns[c.ID] = c
	return r.named(c), nil
}

func (r *Repository) DeleteCampaign(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, err := r.enter(ctx, "DeleteCampaign")
	if err != nil {
		return err
	}
	c, ok := r.campaigns[id]
	if !ok || c.UserID != owner {
		return marketing.ErrNotFound
	}
	delete(r.campaigns, id)
	return nil
}

func (r *Repository) ListAssets(ctx context.Context, kind marketing.AssetKind) ([]marketing.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, err := r.enter(ctx, "ListAssets")
	if err != nil {
		return nil, err
	}
	out := []marketing.Asset{}
	for _, a := range r.assets[kind] {
		if a.UserID == owner {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) SaveAsset(ctx context.Context, a marketing.Asset) (marketing.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, err := r.enter(ctx, "SaveAsset")
	if err != nil {
		return marketing.Asset{}, err
	}
	table, ok := r.assets[a.Kind]
	if !ok {
		return marketing.Asset{}, marketing.ErrInvalidInput
	}
	if prev, exists := table[a.ID]; exists {
		if prev.UserID != owner {
			return marketing.Asset{}, marketing.ErrNotFound
		}
		a.CreatedAt = prev.CreatedAt
	}
	table[a.ID] = a
	return a, nil
}

func (r *Repository) DeleteAsset(ctx context.Context, kind marketing.AssetKind, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, err := r.enter(ctx, "DeleteAsset")
	if err != nil {
		return err
	}
	a, ok := r.assets[kind][id]
	if !ok || a.UserID != owner {
		return marketing.ErrNotFound
	}
	delete(r.assets[kind], id)
	return nil
}

func (r *Repository) ListContent(ctx context.Context, filter marketing.ContentFilter) ([]marketing.GeneratedContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, err := r.enter(ctx, "ListContent")
	if err != nil {
		return nil, err
	}
	out := []marketing.GeneratedContent{}
	for _, c := range r.content {
		if c.UserID != owner {
			continue
		}
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		if filter.CampaignID != "" && (c.CampaignID == nil || *c.CampaignID != filter.CampaignID) {
			continue
		}
		if c.CampaignID != nil {
			c.CampaignName = r.campaigns[*c.CampaignID].Name
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) InsertContent(ctx context.Context, c marketing.GeneratedContent) (marketing.GeneratedContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.enter(ctx, "InsertContent"); err != nil {
		return marketing.GeneratedContent{}, err
	}
	if _, exists := r.content[c.ID]; exists {
		return marketing.GeneratedContent{}, marketing.ErrConflict
	}
	c.Content = append(json.RawMessage(nil), c.Content...)
	r.content[c.ID] = c
	return c, nil
}

func (r *Repository) DeleteContent(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, err := r.enter(ctx, "DeleteContent")
	if err != nil {
		return err
	}
	c, ok := r.content[id]
	if !ok || c.UserID != owner {
		return marketing.ErrNotFound
	}
	delete(r.content, id)
	return nil
}

func (r *Repository) ListKnowledgeFiles(ctx context.Context) ([]marketing.KnowledgeFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, err := r.enter(ctx, "ListKnowledgeFiles")
	if err != nil {
		return nil, err
	}
	out := []marketing.KnowledgeFile{}
	for _, f := range r.files {
		if f.UserID == owner {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) GetBrandVoice(ctx context.Context) (marketing.BrandVoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, err := r.enter(ctx, "GetBrandVoice")
	if err != nil {
		return marketing.BrandVoice{}, err
	}
	v, ok := r.voices[owner]
	if !ok {
		return marketing.BrandVoice{UserID: owner, Tags: []string{}}, nil
	}
	return v, nil
}

func (r *Repository) SaveBrandVoice(ctx context.Context, v marketing.BrandVoice) (marketing.BrandVoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.enter(ctx, "SaveBrandVoice"); err != nil {
		return marketing.BrandVoice{}, err
	}
	r.voices[v.UserID] = v
	return v, nil
}

var _ marketing.Repository = (*Repository)(nil)
