package marketing_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/cache/memory"
	"github.com/adeilh/aura/marketing"
	"github.com/adeilh/aura/marketing/marketingtest"
	"github.com/adeilh/aura/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticIdentity struct{ ident *auth.Identity }

func (s staticIdentity) CurrentIdentity() *auth.Identity       { return s.ident }
func (s staticIdentity) Subscribe(func(*auth.Identity)) func() { return func() {} }

type fixture struct {
	svc    *marketing.Service
	repo   *marketingtest.Repository
	client *query.Client
	store  *memory.Store
}

func newFixture(t *testing.T, ident *auth.Identity) fixture {
	t.Helper()
	store := memory.NewStore(memory.Options{})
	t.Cleanup(func() { _ = store.Close() })

	src := staticIdentity{ident: ident}
	client, err := query.NewClient(store, query.WithIdentitySource(src))
	require.NoError(t, err)

	repo := marketingtest.New()
	seq, ids := 0, 0
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := marketing.NewService(repo, client,
		marketing.WithIdentity(src),
		marketing.WithClock(func() time.Time {
			seq++
			return base.Add(time.Duration(seq) * time.Minute)
		}),
		marketing.WithIDs(func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		}),
	)
	require.NoError(t, err)
	return fixture{svc: svc, repo: repo, client: client, store: store}
}

func waitFor[T any](t *testing.T, q *query.Query[T]) query.State[T] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))
	return q.State()
}

func seedAssets(t *testing.T, f fixture) (product, audience, expert marketing.Asset) {
	t.Helper()
	ctx := context.Background()
	var err error
	product, err = f.svc.SaveAsset(ctx, marketing.Asset{Kind: marketing.KindProducts, Name: "Curso",
		Attributes: map[string]any{"price_info": "R$ 997"}})
	require.NoError(t, err)
	audience, err = f.svc.SaveAsset(ctx, marketing.Asset{Kind: marketing.KindAudiences, Name: "Founders"})
	require.NoError(t, err)
	expert, err = f.svc.SaveAsset(ctx, marketing.Asset{Kind: marketing.KindExperts, Name: "Ana"})
	require.NoError(t, err)
	return product, audience, expert
}

func TestCreateCampaignInvalidatesList(t *testing.T) {
	f := newFixture(t, &auth.Identity{ID: "user-1"})
	ctx := context.Background()
	product, audience, expert := seedAssets(t, f)

	q, err := f.svc.Campaigns(ctx)
	require.NoError(t, err)
	defer q.Close()
	st := waitFor(t, q)
	require.Empty(t, st.Data)

	_, err = f.store.Get(ctx, query.KeyCampaigns)
	require.NoError(t, err, "list should be persisted after the fetch")

	created, err := f.svc.CreateCampaign(ctx, marketing.Campaign{
		Name: "Launch", ProductID: product.ID, AudienceID: audience.ID, ExpertID: expert.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, marketing.CampaignActive, created.Status)
	assert.Equal(t, "user-1", created.UserID)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Curso", created.ProductName)

	_, err = f.store.Get(ctx, query.KeyCampaigns)
	require.Error(t, err, "create should drop the cached list")

	require.NoError(t, q.Refresh(ctx))
	st = q.State()
	require.Len(t, st.Data, 1)
	assert.Equal(t, "Launch", st.Data[0].Name)
	assert.Equal(t, "Founders", st.Data[0].AudienceName)
}

func TestCreateCampaignValidation(t *testing.T) {
	t.Run("missing name", func(t *testing.T) {
		f := newFixture(t, &auth.Identity{ID: "user-1"})
		_, err := f.svc.CreateCampaign(context.Background(), marketing.Campaign{ProductID: "p", AudienceID: "a", ExpertID: "e"})
		require.ErrorIs(t, err, marketing.ErrInvalidInput)
		assert.Zero(t, f.repo.Calls("CreateCampaign"))
	})
	t.Run("missing asset", func(t *testing.T) {
		f := newFixture(t, &auth.Identity{ID: "user-1"})
		_, err := f.svc.CreateCampaign(context.Background(), marketing.Campaign{Name: "x", ProductID: "p"})
		require.ErrorIs(t, err, marketing.ErrInvalidInput)
	})
	t.Run("signed out", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.CreateCampaign(context.Background(), marketing.Campaign{Name: "x", ProductID: "p", AudienceID: "a", ExpertID: "e"})
		require.ErrorIs(t, err, marketing.ErrNoOwner)
	})
}

func TestDeleteCampaignDropsRelatedKeys(t *testing.T) {
	f := newFixture(t, &auth.Identity{ID: "user-1"})
	ctx := context.Background()
	product, audience, expert := seedAssets(t, f)
	c, err := f.svc.CreateCampaign(ctx, marketing.Campaign{Name: "Launch", ProductID: product.ID, AudienceID: audience.ID, ExpertID: expert.ID})
	require.NoError(t, err)

	for _, key := range []string{query.KeyCampaigns, query.CampaignKey(c.ID), query.CampaignContentKey(c.ID)} {
		require.NoError(t, f.store.Set(ctx, key, []byte(`[]`), 0))
	}
	require.NoError(t, f.svc.DeleteCampaign(ctx, c.ID))
	assert.Zero(t, f.store.Len())

	err = f.svc.DeleteCampaign(ctx, c.ID)
	require.ErrorIs(t, err, marketing.ErrNotFound)
}

func TestDeleteAssetRewritesCachedList(t *testing.T) {
	f := newFixture(t, &auth.Identity{ID: "user-1"})
	ctx := context.Background()
	first, err := f.svc.SaveAsset(ctx, marketing.Asset{Kind: marketing.KindAudiences, Name: "Founders"})
	require.NoError(t, err)
	second, err := f.svc.SaveAsset(ctx, marketing.Asset{Kind: marketing.KindAudiences, Name: "Students",
		Attributes: map[string]any{"age_range": "18-24"}})
	require.NoError(t, err)

	q, err := f.svc.Assets(ctx, marketing.KindAudiences)
	require.NoError(t, err)
	defer q.Close()
	st := waitFor(t, q)
	require.Len(t, st.Data, 2)
	assert.Equal(t, second.ID, st.Data[0].ID, "newest first")

	require.NoError(t, f.svc.DeleteAsset(ctx, marketing.KindAudiences, second.ID))

	cached, ok, err := query.Read[[]marketing.Asset](ctx, f.client, query.AssetsKey("audiences"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cached, 1)
	assert.Equal(t, first.ID, cached[0].ID)
	assert.Equal(t, 1, f.repo.Calls("ListAssets"), "delete must not refetch")
}

func TestDeleteAssetWithoutCachedList(t *testing.T) {
	f := newFixture(t, &auth.Identity{ID: "user-1"})
	ctx := context.Background()
	a, err := f.svc.SaveAsset(ctx, marketing.Asset{Kind: marketing.KindExperts, Name: "Ana"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteAsset(ctx, marketing.KindExperts, a.ID))
	_, ok, err := query.Read[[]marketing.Asset](ctx, f.client, query.AssetsKey("experts"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveAssetInvalidatesList(t *testing.T) {
	f := newFixture(t, &auth.Identity{ID: "user-1"})
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, query.AssetsKey("products"), []byte(`[]`), 0))

	_, err := f.svc.SaveAsset(ctx, marketing.Asset{Kind: marketing.KindProducts, Name: "Curso"})
	require.NoError(t, err)
	_, ok, err := query.Read[[]marketing.Asset](ctx, f.client, query.AssetsKey("products"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.SaveAsset(ctx, marketing.Asset{Kind: "widgets", Name: "x"})
	require.ErrorIs(t, err, marketing.ErrInvalidInput)
}

func TestSaveContentInvalidatesListings(t *testing.T) {
	f := newFixture(t, &auth.Identity{ID: "user-1"})
	ctx := context.Background()
	campaignID := "camp-1"
	keys := []string{query.ContentKey("email"), query.CampaignContentKey(campaignID), query.ContentKey("ugc")}
	for _, key := range keys {
		require.NoError(t, f.store.Set(ctx, key, []byte(`[]`), 0))
	}

	saved, err := f.svc.SaveContent(ctx, marketing.GeneratedContent{
		CampaignID: &campaignID,
		Type:       marketing.ContentEmail,
		Content:    json.RawMessage(`{"subject_line":"Oi"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "E-mail Marketing", saved.Title)
	assert.Equal(t, "user-1", saved.UserID)

	assert.ElementsMatch(t, []string{query.ContentKey("ugc")}, f.store.Keys())

	_, err = f.svc.SaveContent(ctx, marketing.GeneratedContent{Type: marketing.ContentEmail, Content: json.RawMessage(`{`)})
	require.ErrorIs(t, err, marketing.ErrInvalidInput)
}

func TestCampaignContentFallsBackToEmpty(t *testing.T) {
	f := newFixture(t, &auth.Identity{ID: "user-1"})
	f.repo.SetErr(errors.New("column campaign_id does not exist"))

	q, err := f.svc.CampaignContent(context.Background(), "camp-1")
	require.NoError(t, err)
	defer q.Close()
	st := waitFor(t, q)
	require.NoError(t, st.Err)
	assert.True(t, st.HasData)
	assert.Empty(t, st.Data)
}

func TestCampaignQueryDisabledWithoutID(t *testing.T) {
	f := newFixture(t, &auth.Identity{ID: "user-1"})
	q, err := f.svc.Campaign(context.Background(), "")
	require.NoError(t, err)
	defer q.Close()
	st := waitFor(t, q)
	assert.True(t, st.Loading)
	assert.Zero(t, f.repo.Calls("GetCampaign"))
}

func TestQueriesIdleWhileSignedOut(t *testing.T) {
	f := newFixture(t, nil)
	q, err := f.svc.Campaigns(context.Background())
	require.NoError(t, err)
	defer q.Close()
	st := waitFor(t, q)
	assert.True(t, st.Loading)
	assert.Empty(t, st.Data)
	assert.Zero(t, f.repo.Calls("ListCampaigns"))
}

func TestBrandVoiceRoundTrip(t *testing.T) {
	f := newFixture(t, &auth.Identity{ID: "user-1"})
	ctx := context.Background()

	_, err := f.svc.SaveBrandVoice(ctx, marketing.BrandVoice{Tags: marketing.SplitTags("Direto, , Amigável"), Description: "Sem jargões"})
	require.NoError(t, err)

	q, err := f.svc.BrandVoice(ctx)
	require.NoError(t, err)
	defer q.Close()
	st := waitFor(t, q)
	assert.Equal(t, []string{"Direto", "Amigável"}, st.Data.Tags)
	assert.Equal(t, "user-1", st.Data.UserID)
}

type profileStub struct{ profile auth.Profile }

func (p profileStub) FetchProfile(_ context.Context, userID string) (auth.Profile, error) {
	out := p.profile
	out.ID = userID
	return out, nil
}

func TestProfileQuery(t *testing.T) {
	f := newFixture(t, &auth.Identity{ID: "user-1"})
	_, err := f.svc.Profile(context.Background())
	require.Error(t, err)

	svc, err := marketing.NewService(f.repo, f.client,
		marketing.WithIdentity(staticIdentity{ident: &auth.Identity{ID: "user-1"}}),
		marketing.WithProfiles(profileStub{profile: auth.Profile{FullName: "Ana"}}))
	require.NoError(t, err)
	q, err := svc.Profile(context.Background())
	require.NoError(t, err)
	defer q.Close()
	st := waitFor(t, q)
	assert.Equal(t, "user-1", st.Data.ID)
	assert.Equal(t, "Ana", st.Data.FullName)
}

func TestAddKnowledgeFileInvalidatesList(t *testing.T) {
	f := newFixture(t, &auth.Identity{ID: "user-1"})
	ctx := context.Background()

	q, err := f.svc.KnowledgeFiles(ctx)
	require.NoError(t, err)
	defer q.Close()
	waitFor(t, q)
	_, ok, err := query.Read[[]marketing.KnowledgeFile](ctx, f.client, query.KeyBrainFiles)
	require.NoError(t, err)
	require.True(t, ok)

	saved, err := f.svc.AddKnowledgeFile(ctx, marketing.KnowledgeFile{Name: "playbook.pdf", SizeBytes: 10})
	require.NoError(t, err)
	assert.Equal(t, "user-1", saved.UserID)

	_, ok, err = query.Read[[]marketing.KnowledgeFile](ctx, f.client, query.KeyBrainFiles)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, q.Refresh(ctx))
	require.Len(t, q.State().Data, 1)

	_, err = f.svc.AddKnowledgeFile(ctx, marketing.KnowledgeFile{})
	require.ErrorIs(t, err, marketing.ErrInvalidInput)
}
