package marketing

import (
	"context"

	"github.com/adeilh/aura/auth"
)

// Repository is the data service behind the dashboard. Every call is
// scoped to the owner carried by ctx (see OwnerID); implementations that
// enforce ownership server side may ignore it.
type Repository interface {
	// ListCampaigns returns the owner's campaigns, newest first, with the
	// names of their assets.
	ListCampaigns(ctx context.Context) ([]Campaign, error)
	GetCampaign(ctx context.Context, id string) (CampaignDetail, error)
	CreateCampaign(ctx context.Context, c Campaign) (Campaign, error)
	DeleteCampaign(ctx context.Context, id string) error

	ListAssets(ctx context.Context, kind AssetKind) ([]Asset, error)
	// SaveAsset inserts a when it has no ID and updates it otherwise.
	SaveAsset(ctx context.Context, a Asset) (Asset, error)
	DeleteAsset(ctx context.Context, kind AssetKind, id string) error

	ListContent(ctx context.Context, filter ContentFilter) ([]GeneratedContent, error)
	InsertContent(ctx context.Context, c GeneratedContent) (GeneratedContent, error)
	DeleteContent(ctx context.Context, id string) error

	ListKnowledgeFiles(ctx context.Context) ([]KnowledgeFile, error)
	AddKnowledgeFile(ctx context.Context, f KnowledgeFile) (KnowledgeFile, error)
	GetBrandVoice(ctx context.Context) (BrandVoice, error)
	SaveBrandVoice(ctx context.Context, v BrandVoice) (BrandVoice, error)
}

// OwnerID returns the id of the identity attached to ctx.
func OwnerID(ctx context.Context) (string, error) {
	ident, ok := auth.IdentityFromContext(ctx)
	if !ok || ident == nil || ident.ID == "" {
		return "", ErrNoOwner
	}
	return ident.ID, nil
}
