package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/marketing"
	"github.com/lib/pq"
)

// Repository persists marketing records inside PostgreSQL. Every query is
// filtered by the owner carried in the context.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an existing *sql.DB connection.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var (
	_ marketing.Repository = (*Repository)(nil)
	_ auth.ProfileFetcher  = (*Repository)(nil)
)

type scanner interface {
	Scan(dest ...any) error
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const campaignColumns = `c.id, c.user_id, c.name, c.status, c.objective,
	c.product_id, c.audience_id, c.expert_id, c.created_at,
	COALESCE(p.name, ''), COALESCE(a.name, ''), COALESCE(e.name, '')`

const campaignJoins = `FROM campaigns c
	LEFT JOIN products p ON p.id = c.product_id
	LEFT JOIN audiences a ON a.id = c.audience_id
	LEFT JOIN experts e ON e.id = c.expert_id`

func scanCampaign(row scanner) (marketing.Campaign, error) {
	var (
		c                            marketing.Campaign
		product, audience, expertRef sql.NullString
	)
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Name,
		&c.Status,
		&c.Objective,
		&product,
		&audience,
		&expertRef,
		&c.CreatedAt,
		&c.ProductName,
		&c.AudienceName,
		&c.ExpertName,
	)
	if err != nil {
		return marketing.Campaign{}, err
	}
	c.ProductID, c.AudienceID, c.ExpertID = product.String, audience.String, expertRef.String
	return c, nil
}

func (r *Repository) ListCampaigns(ctx context.Context) ([]marketing.Campaign, error) {
	owner, err := marketing.OwnerID(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + campaignColumns + ` ` + campaignJoins + `
		WHERE c.user_id = $1 ORDER BY c.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	out := []marketing.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, translateError(err)
		}
		out = append(out, c)
	}
	return out, translateError(rows.Err())
}

func (r *Repository) GetCampaign(ctx context.Context, id string) (marketing.CampaignDetail, error) {
	owner, err := marketing.OwnerID(ctx)
	if err != nil {
		return marketing.CampaignDetail{}, err
	}
	query := `SELECT ` + campaignColumns + ` ` + campaignJoins + `
		WHERE c.id = $1 AND c.user_id = $2`
	c, err := scanCampaign(r.db.QueryRowContext(ctx, query, id, owner))
	if err != nil {
		return marketing.CampaignDetail{}, translateError(err)
	}

	detail := marketing.CampaignDetail{Campaign: c}
	for _, ref := range []struct {
		kind marketing.AssetKind
		id   string
		dst  **marketing.Asset
	}{
		{marketing.KindProducts, c.ProductID, &detail.Product},
		{marketing.KindAudiences, c.AudienceID, &detail.Audience},
		{marketing.KindExperts, c.ExpertID, &detail.Expert},
	} {
		if ref.id == "" {
			continue
		}
		a, err := r.getAsset(ctx, ref.kind, ref.id, owner)
		if errors.Is(err, marketing.ErrNotFound) {
			continue
		}
		if err != nil {
			return marketing.CampaignDetail{}, err
		}
		*ref.dst = &a
	}
	return detail, nil
}

func (r *Repository) CreateCampaign(ctx context.Context, c marketing.Campaign) (marketing.Campaign, error) {
	const query = `INSERT INTO campaigns (id, user_id, name, status, objective, product_id, audience_id, expert_id, created_at)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.Name, c.Status, c.Objective,
		nullable(c.ProductID), nullable(c.AudienceID), nullable(c.ExpertID), c.CreatedAt)
	if err != nil {
		return marketing.Campaign{}, translateError(err)
	}

	named := `SELECT ` + campaignColumns + ` ` + campaignJoins + ` WHERE c.id = $1`
	created, err := scanCampaign(r.db.QueryRowContext(ctx, named, c.ID))
	if err != nil {
		return marketing.Campaign{}, translateError(err)
	}
	return created, nil
}

func (r *Repository) DeleteCampaign(ctx context.Context, id string) error {
	return r.deleteOwned(ctx, "campaigns", id)
}

// deleteOwned removes one row of table owned by the context's owner. table
// is never user input.
func (r *Repository) deleteOwned(ctx context.Context, table, id string) error {
	owner, err := marketing.OwnerID(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1 AND user_id = $2`, id, owner)
	if err != nil {
		return translateError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return marketing.ErrNotFound
	}
	return nil
}

func assetTable(kind marketing.AssetKind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown asset kind %q", marketing.ErrInvalidInput, kind)
	}
	return string(kind), nil
}

func scanAsset(row scanner, kind marketing.AssetKind) (marketing.Asset, error) {
	var (
		a         marketing.Asset
		attrsJSON []byte
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &attrsJSON, &a.CreatedAt); err != nil {
		return marketing.Asset{}, err
	}
	a.Kind = kind
	if len(attrsJSON) > 0 {
		if err := json.Unmarshal(attrsJSON, &a.Attributes); err != nil {
			return marketing.Asset{}, err
		}
	}
	return a, nil
}

func (r *Repository) getAsset(ctx context.Context, kind marketing.AssetKind, id, owner string) (marketing.Asset, error) {
	table, err := assetTable(kind)
	if err != nil {
		return marketing.Asset{}, err
	}
	query := `SELECT id, user_id, name, attributes, created_at FROM ` + table + ` WHERE id = $1 AND user_id = $2`
	a, err := scanAsset(r.db.QueryRowContext(ctx, query, id, owner), kind)
	if err != nil {
		return marketing.Asset{}, translateError(err)
	}
	return a, nil
}

func (r *Repository) ListAssets(ctx context.Context, kind marketing.AssetKind) ([]marketing.Asset, error) {
	table, err := assetTable(kind)
	if err != nil {
		return nil, err
	}
	owner, err := marketing.OwnerID(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, user_id, name, attributes, created_at FROM ` + table + ` WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	out := []marketing.Asset{}
	for rows.Next() {
		a, err := scanAsset(rows, kind)
		if err != nil {
			return nil, translateError(err)
		}
		out = append(out, a)
	}
	return out, translateError(rows.Err())
}

// SaveAsset upserts a. An existing row owned by someone else is left
// untouched and reported as not found.
func (r *Repository) SaveAsset(ctx context.Context, a marketing.Asset) (marketing.Asset, error) {
	table, err := assetTable(a.Kind)
	if err != nil {
		return marketing.Asset{}, err
	}
	attrsJSON, err := json.Marshal(a.Attributes)
	if err != nil {
		return marketing.Asset{}, err
	}
	if a.Attributes == nil {
		attrsJSON = []byte("{}")
	}
	query := `INSERT INTO ` + table + ` (id, user_id, name, attributes, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, attributes = EXCLUDED.attributes
		WHERE ` + table + `.user_id = EXCLUDED.user_id
		RETURNING id, user_id, name, attributes, created_at`
	var createdAt any
	if !a.CreatedAt.IsZero() {
		createdAt = a.CreatedAt
	}
	saved, err := scanAsset(r.db.QueryRowContext(ctx, query, a.ID, a.UserID, a.Name, string(attrsJSON), createdAt), a.Kind)
	if err != nil {
		return marketing.Asset{}, translateError(err)
	}
	return saved, nil
}

func (r *Repository) DeleteAsset(ctx context.Context, kind marketing.AssetKind, id string) error {
	table, err := assetTable(kind)
	if err != nil {
		return err
	}
	return r.deleteOwned(ctx, table, id)
}

func (r *Repository) ListContent(ctx context.Context, filter marketing.ContentFilter) ([]marketing.GeneratedContent, error) {
	owner, err := marketing.OwnerID(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT g.id, g.user_id, g.campaign_id, COALESCE(c.name, ''), g.type, g.title, g.content, g.created_at
		FROM generated_content g
		LEFT JOIN campaigns c ON c.id = g.campaign_id
		WHERE g.user_id = $1
		AND ($2 = '' OR g.type = $2)
		AND ($3 = '' OR g.campaign_id::text = $3)
		ORDER BY g.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, owner, string(filter.Type), filter.CampaignID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	out := []marketing.GeneratedContent{}
	for rows.Next() {
		var (
			g          marketing.GeneratedContent
			campaignID sql.NullString
			content    []byte
		)
		if err := rows.Scan(&g.ID, &g.UserID, &campaignID, &g.CampaignName, &g.Type, &g.Title, &content, &g.CreatedAt); err != nil {
			return nil, translateError(err)
		}
		if campaignID.Valid {
			id := campaignID.String
			g.CampaignID = &id
		}
		g.Content = json.RawMessage(content)
		out = append(out, g)
	}
	return out, translateError(rows.Err())
}

func (r *Repository) InsertContent(ctx context.Context, g marketing.GeneratedContent) (marketing.GeneratedContent, error) {
	const query = `INSERT INTO generated_content (id, user_id, campaign_id, type, title, content, created_at)
                   VALUES ($1, $2, $3, $4, $5, $6, $7)`
	var campaignID sql.NullString
	if g.CampaignID != nil {
		campaignID = nullable(*g.CampaignID)
	}
	_, err := r.db.ExecContext(ctx, query, g.ID, g.UserID, campaignID, string(g.Type), g.Title, string(g.Content), g.CreatedAt)
	if err != nil {
		return marketing.GeneratedContent{}, translateError(err)
	}
	return g, nil
}

func (r *Repository) DeleteContent(ctx context.Context, id string) error {
	return r.deleteOwned(ctx, "generated_content", id)
}

func (r *Repository) ListKnowledgeFiles(ctx context.Context) ([]marketing.KnowledgeFile, error) {
	owner, err := marketing.OwnerID(ctx)
	if err != nil {
		return nil, err
	}
	const query = `SELECT id, user_id, name, size_bytes, created_at FROM knowledge_files WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	out := []marketing.KnowledgeFile{}
	for rows.Next() {
		var f marketing.KnowledgeFile
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.SizeBytes, &f.CreatedAt); err != nil {
			return nil, translateError(err)
		}
		out = append(out, f)
	}
	return out, translateError(rows.Err())
}

// AddKnowledgeFile records an uploaded document.
func (r *Repository) AddKnowledgeFile(ctx context.Context, f marketing.KnowledgeFile) (marketing.KnowledgeFile, error) {
	const query = `INSERT INTO knowledge_files (id, user_id, name, size_bytes, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, f.ID, f.UserID, f.Name, f.SizeBytes, f.CreatedAt); err != nil {
		return marketing.KnowledgeFile{}, translateError(err)
	}
	return f, nil
}

func (r *Repository) GetBrandVoice(ctx context.Context) (marketing.BrandVoice, error) {
	owner, err := marketing.OwnerID(ctx)
	if err != nil {
		return marketing.BrandVoice{}, err
	}
	const query = `SELECT user_id, tags, description, updated_at FROM brand_voices WHERE user_id = $1`
	var (
		v        marketing.BrandVoice
		tagsJSON []byte
	)
	err = r.db.QueryRowContext(ctx, query, owner).Scan(&v.UserID, &tagsJSON, &v.Description, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return marketing.BrandVoice{UserID: owner, Tags: []string{}}, nil
	}
	if err != nil {
		return marketing.BrandVoice{}, translateError(err)
	}
	if err := json.Unmarshal(tagsJSON, &v.Tags); err != nil {
		return marketing.BrandVoice{}, err
	}
	return v, nil
}

func (r *Repository) SaveBrandVoice(ctx context.Context, v marketing.BrandVoice) (marketing.BrandVoice, error) {
	const query = `INSERT INTO brand_voices (user_id, tags, description, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET tags = EXCLUDED.tags, description = EXCLUDED.description, updated_at = EXCLUDED.updated_at`
	if v.Tags == nil {
		v.Tags = []string{}
	}
	tagsJSON, err := json.Marshal(v.Tags)
	if err != nil {
		return marketing.BrandVoice{}, err
	}
	if _, err := r.db.ExecContext(ctx, query, v.UserID, string(tagsJSON), v.Description, v.UpdatedAt); err != nil {
		return marketing.BrandVoice{}, translateError(err)
	}
	return v, nil
}

// FetchProfile loads the profile of userID.
func (r *Repository) FetchProfile(ctx context.Context, userID string) (auth.Profile, error) {
	const query = `SELECT id, full_name, avatar_url, subscription_tier FROM profiles WHERE id = $1`
	var p auth.Profile
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&p.ID, &p.FullName, &p.AvatarURL, &p.SubscriptionTier)
	if err != nil {
		return auth.Profile{}, translateError(err)
	}
	return p, nil
}

// UpsertProfile creates or replaces a profile.
func (r *Repository) UpsertProfile(ctx context.Context, p auth.Profile) error {
	const query = `INSERT INTO profiles (id, full_name, avatar_url, subscription_tier) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, avatar_url = EXCLUDED.avatar_url,
		subscription_tier = EXCLUDED.subscription_tier`
	tier := p.SubscriptionTier
	if tier == "" {
		tier = "free"
	}
	_, err := r.db.ExecContext(ctx, query, p.ID, p.FullName, p.AvatarURL, tier)
	return translateError(err)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return marketing.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", marketing.ErrConflict, pqErr.Message)
		case "22P02":
			return marketing.ErrNotFound
		case "23503", "23514", "23502":
			return fmt.Errorf("%w: %s", marketing.ErrInvalidInput, pqErr.Message)
		}
	}
	return err
}
