package marketing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/query"
	"github.com/google/uuid"
)

// Service binds the dashboard's cache keys to Repository reads and keeps
// the persisted cache consistent after writes.
type Service struct {
	repo     Repository
	client   *query.Client
	identity query.IdentitySource
	profiles auth.ProfileFetcher
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

type ServiceOption func(*Service)

// WithIdentity attaches the signed-in identity to every repository call
// that does not already carry one.
func WithIdentity(src query.IdentitySource) ServiceOption {
	return func(s *Service) {
		if src != nil {
			s.identity = src
		}
	}
}

// WithProfiles enables the Profile query.
func WithProfiles(f auth.ProfileFetcher) ServiceOption {
	return func(s *Service) {
		if f != nil {
			s.profiles = f
		}
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func withClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func withIDs(newID func() string) ServiceOption {
	return func(s *Service) { s.newID = newID }
}

func NewService(repo Repository, client *query.Client, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("marketing: repository is nil")
	}
	if client == nil {
		return nil, errors.New("marketing: query client is nil")
	}
	s := &Service{
		repo:   repo,
		client: client,
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Repository returns the wrapped data service.
func (s *Service) Repository() Repository { return s.repo }

// Client returns the query client the service caches through.
func (s *Service) Client() *query.Client { return s.client }

func (s *Service) ownerContext(ctx context.Context) context.Context {
	if _, ok := auth.IdentityFromContext(ctx); ok || s.identity == nil {
		return ctx
	}
	if ident := s.identity.CurrentIdentity(); ident != nil {
		return auth.WithIdentity(ctx, ident)
	}
	return ctx
}

func (s *Service) owner(ctx context.Context) (context.Context, string, error) {
	ctx = s.ownerContext(ctx)
	id, err := OwnerID(ctx)
	return ctx, id, err
}

func owned[T any](s *Service, fetch func(context.Context) (T, error)) query.Fetcher[T] {
	return func(ctx context.Context) (T, error) {
		return fetch(s.ownerContext(ctx))
	}
}

// Campaigns is the campaign list. ctx bounds the fetches of the returned
// query.
func (s *Service) Campaigns(ctx context.Context) (*query.Query[[]Campaign], error) {
	return query.New(ctx, s.client, query.KeyCampaigns,
		owned(s, s.repo.ListCampaigns),
		query.WithInitialData([]Campaign{}))
}

// Campaign is one campaign with its assets. The query stays disabled while
// id is empty.
func (s *Service) Campaign(ctx context.Context, id string) (*query.Query[CampaignDetail], error) {
	return query.New(ctx, s.client, query.CampaignKey(id),
		owned(s, func(ctx context.Context) (CampaignDetail, error) {
			return s.repo.GetCampaign(ctx, id)
		}),
		query.WithEnabled[CampaignDetail](id != ""))
}

// CampaignContent lists the content saved against a campaign. A failed
// lookup yields an empty list instead of an error.
func (s *Service) CampaignContent(ctx context.Context, id string) (*query.Query[[]GeneratedContent], error) {
	return query.New(ctx, s.client, query.CampaignContentKey(id),
		owned(s, func(ctx context.Context) ([]GeneratedContent, error) {
			items, err := s.repo.ListContent(ctx, ContentFilter{CampaignID: id})
			if err != nil {
				s.logger.Warn("campaign content lookup failed", slog.String("campaign_id", id), slog.Any("error", err))
				return []GeneratedContent{}, nil
			}
			return items, nil
		}),
		query.WithInitialData([]GeneratedContent{}),
		query.WithEnabled[[]GeneratedContent](id != ""))
}

// Assets lists one asset table.
func (s *Service) Assets(ctx context.Context, kind AssetKind) (*query.Query[[]Asset], error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown asset kind %q", ErrInvalidInput, kind)
	}
	return query.New(ctx, s.client, query.AssetsKey(string(kind)),
		owned(s, func(ctx context.Context) ([]Asset, error) {
			return s.repo.ListAssets(ctx, kind)
		}),
		query.WithInitialData([]Asset{}))
}

// Content lists generated content of one type.
func (s *Service) Content(ctx context.Context, typ ContentType) (*query.Query[[]GeneratedContent], error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown content type %q", ErrInvalidInput, typ)
	}
	return query.New(ctx, s.client, query.ContentKey(string(typ)),
		owned(s, func(ctx context.Context) ([]GeneratedContent, error) {
			return s.repo.ListContent(ctx, ContentFilter{Type: typ})
		}),
		query.WithInitialData([]GeneratedContent{}))
}

func (s *Service) KnowledgeFiles(ctx context.Context) (*query.Query[[]KnowledgeFile], error) {
	return query.New(ctx, s.client, query.KeyBrainFiles,
		owned(s, s.repo.ListKnowledgeFiles),
		query.WithInitialData([]KnowledgeFile{}))
}

func (s *Service) BrandVoice(ctx context.Context) (*query.Query[BrandVoice], error) {
	return query.New(ctx, s.client, query.KeyBrainVoice, owned(s, s.repo.GetBrandVoice))
}

// Profile is the signed-in user's profile. It requires WithProfiles.
func (s *Service) Profile(ctx context.Context) (*query.Query[auth.Profile], error) {
	if s.profiles == nil {
		return nil, errors.New("marketing: no profile fetcher configured")
	}
	return query.New(ctx, s.client, query.KeyProfile,
		owned(s, func(ctx context.Context) (auth.Profile, error) {
			id, err := OwnerID(ctx)
			if err != nil {
				return auth.Profile{}, err
			}
			return s.profiles.FetchProfile(ctx, id)
		}))
}

// CreateCampaign stores c as an active campaign and drops the cached
// campaign list.
func (s *Service) CreateCampaign(ctx context.Context, c Campaign) (Campaign, error) {
	if err := c.validate(); err != nil {
		return Campaign{}, err
	}
	ctx, owner, err := s.owner(ctx)
	if err != nil {
		return Campaign{}, err
	}
	if c.ID == "" {
		c.ID = s.newID()
	}
	if c.Status == "" {
		c.Status = CampaignActive
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	c.UserID = owner

	created, err := s.repo.CreateCampaign(ctx, c)
	if err != nil {
		return Campaign{}, err
	}
	s.invalidate(ctx, query.KeyCampaigns)
	return created, nil
}

func (s *Service) DeleteCampaign(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: campaign id is required", ErrInvalidInput)
	}
	ctx = s.ownerContext(ctx)
	if err := s.repo.DeleteCampaign(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, query.KeyCampaigns, query.CampaignKey(id), query.CampaignContentKey(id))
	return nil
}

// SaveAsset inserts or updates a and drops the cached list of its kind so
// the next read refetches it.
func (s *Service) SaveAsset(ctx context.Context, a Asset) (Asset, error) {
	if err := a.validate(); err != nil {
		return Asset{}, err
	}
	ctx, owner, err := s.owner(ctx)
	if err != nil {
		return Asset{}, err
	}
	if a.ID == "" {
		a.ID = s.newID()
		a.CreatedAt = s.now().UTC()
	}
	a.UserID = owner

	saved, err := s.repo.SaveAsset(ctx, a)
	if err != nil {
		return Asset{}, err
	}
	s.invalidate(ctx, query.AssetsKey(string(a.Kind)))
	return saved, nil
}

// DeleteAsset removes an asset and rewrites the cached list without it.
func (s *Service) DeleteAsset(ctx context.Context, kind AssetKind, id string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown asset kind %q", ErrInvalidInput, kind)
	}
	if id == "" {
		return fmt.Errorf("%w: asset id is required", ErrInvalidInput)
	}
	ctx = s.ownerContext(ctx)
	if err := s.repo.DeleteAsset(ctx, kind, id); err != nil {
		return err
	}

	key := query.AssetsKey(string(kind))
	cached, ok, err := query.Read[[]Asset](ctx, s.client, key)
	switch {
	case err != nil:
		s.logger.Warn("cached asset list unreadable, dropping it", slog.String("key", key), slog.Any("error", err))
		s.invalidate(ctx, key)
	case ok:
		if err := query.Write(ctx, s.client, key, WithoutAsset(cached, id)); err != nil {
			s.logger.Warn("rewrite cached asset list failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return nil
}

// SaveContent stores generated content and drops the cached listings it
// appears in.
func (s *Service) SaveContent(ctx context.Context, c GeneratedContent) (GeneratedContent, error) {
	if c.Title == "" {
		c.Title = c.Type.DefaultTitle()
	}
	if err := c.validate(); err != nil {
		return GeneratedContent{}, err
	}
	ctx, owner, err := s.owner(ctx)
	if err != nil {
		return GeneratedContent{}, err
	}
	if c.ID == "" {
		c.ID = s.newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	c.UserID = owner

	saved, err := s.repo.InsertContent(ctx, c)
	if err != nil {
		return GeneratedContent{}, err
	}
	s.invalidate(ctx, contentKeys(c)...)
	return saved, nil
}

// DeleteContent removes c and drops the cached listings it appeared in.
func (s *Service) DeleteContent(ctx context.Context, c GeneratedContent) error {
	if c.ID == "" {
		return fmt.Errorf("%w: content id is required", ErrInvalidInput)
	}
	ctx = s.ownerContext(ctx)
	if err := s.repo.DeleteContent(ctx, c.ID); err != nil {
		return err
	}
	s.invalidate(ctx, contentKeys(c)...)
	return nil
}

func contentKeys(c GeneratedContent) []string {
	var keys []string
	if c.Type.Valid() {
		keys = append(keys, query.ContentKey(string(c.Type)))
	}
	if c.CampaignID != nil && *c.CampaignID != "" {
		keys = append(keys, query.CampaignContentKey(*c.CampaignID))
	}
	return keys
}

// AddKnowledgeFile records an uploaded document and drops the cached file
// list.
func (s *Service) AddKnowledgeFile(ctx context.Context, f KnowledgeFile) (KnowledgeFile, error) {
	if strings.TrimSpace(f.Name) == "" {
		return KnowledgeFile{}, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	ctx, owner, err := s.owner(ctx)
	if err != nil {
		return KnowledgeFile{}, err
	}
	if f.ID == "" {
		f.ID = s.newID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now().UTC()
	}
	f.UserID = owner
	saved, err := s.repo.AddKnowledgeFile(ctx, f)
	if err != nil {
		return KnowledgeFile{}, err
	}
	s.invalidate(ctx, query.KeyBrainFiles)
	return saved, nil
}

func (s *Service) SaveBrandVoice(ctx context.Context, v BrandVoice) (BrandVoice, error) {
	ctx, owner, err := s.owner(ctx)
	if err != nil {
		return BrandVoice{}, err
	}
	v.UserID = owner
	v.UpdatedAt = s.now().UTC()
	if v.Tags == nil {
		v.Tags = []string{}
	}
	saved, err := s.repo.SaveBrandVoice(ctx, v)
	if err != nil {
		return BrandVoice{}, err
	}
	s.invalidate(ctx, query.KeyBrainVoice)
	return saved, nil
}

// invalidate drops cache entries after a successful write. The write has
// already happened, so failures are only logged.
func (s *Service) invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.client.Invalidate(ctx, keys...); err != nil {
		s.logger.Warn("cache invalidation failed", slog.Any("keys", keys), slog.Any("error", err))
	}
}
