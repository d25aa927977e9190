package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/cache/memory"
	"github.com/adeilh/aura/contentapi"
	"github.com/adeilh/aura/httpx"
	"github.com/adeilh/aura/marketing"
	"github.com/adeilh/aura/marketing/marketingtest"
	"github.com/adeilh/aura/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu    sync.Mutex
	ident *auth.Identity
}

func (s *fakeSession) CurrentIdentity() *auth.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ident
}

func (s *fakeSession) set(ident *auth.Identity) {
	s.mu.Lock()
	s.ident = ident
	s.mu.Unlock()
}

func (s *fakeSession) Subscribe(func(*auth.Identity)) func() { return func() {} }
func (s *fakeSession) Profile() *auth.Profile {
	if ident := s.CurrentIdentity(); ident != nil {
		return &auth.Profile{ID: ident.ID, SubscriptionTier: "pro"}
	}
	return nil
}
func (s *fakeSession) Loading() bool { return false }

type fakeGenerator struct {
	mu     sync.Mutex
	emails []contentapi.EmailRequest
	err    error
}

func (g *fakeGenerator) fail(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

func (g *fakeGenerator) failure() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func (g *fakeGenerator) emailRequests() []contentapi.EmailRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]contentapi.EmailRequest(nil), g.emails...)
}

func (g *fakeGenerator) Content(_ context.Context, message, userID string) (string, error) {
	return "copy for " + userID + ": " + message, g.failure()
}

func (g *fakeGenerator) UGC(_ context.Context, req contentapi.UGCRequest) (json.RawMessage, error) {
	if err := g.failure(); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"hook": req.Product + " / " + req.Expert, "style": req.Style})
}

func (g *fakeGenerator) Email(_ context.Context, req contentapi.EmailRequest) (json.RawMessage, error) {
	if err := g.failure(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.emails = append(g.emails, req)
	g.mu.Unlock()
	return json.RawMessage(`{"subject_line":"Launch day","body":"..."}`), nil
}

func (g *fakeGenerator) Message(context.Context, contentapi.MessageRequest) (json.RawMessage, error) {
	return json.RawMessage(`{"messages":["oi"]}`), g.failure()
}

func (g *fakeGenerator) StaticAd(context.Context, contentapi.StaticAdRequest) (json.RawMessage, error) {
	return json.RawMessage(`{"headline":"50% off"}`), g.failure()
}

func (g *fakeGenerator) UploadKnowledge(context.Context, contentapi.Document) (contentapi.UploadResult, error) {
	return contentapi.UploadResult{Status: "success"}, g.failure()
}

type fakeAuth struct {
	session *fakeSession
}

func (a fakeAuth) SignIn(_ context.Context, email, password string) (*auth.Session, error) {
	if password != "secret" {
		return nil, errors.New("invalid login credentials")
	}
	ident := auth.Identity{ID: "user-1", Email: email}
	a.session.set(&ident)
	return &auth.Session{AccessToken: "token", User: ident}, nil
}

func (a fakeAuth) SignOut(context.Context) error {
	a.session.set(nil)
	return nil
}

type env struct {
	http    *httpx.Client
	svc     *marketing.Service
	repo    *marketingtest.Repository
	session *fakeSession
	gen     *fakeGenerator
}

func newEnv(t *testing.T, withGenerator bool) *env {
	t.Helper()
	store := memory.NewStore(memory.Options{})
	t.Cleanup(func() { _ = store.Close() })

	session := &fakeSession{ident: &auth.Identity{ID: "user-1", Email: "ana@example.com"}}
	client, err := query.NewClient(store, query.WithIdentitySource(session))
	require.NoError(t, err)
	repo := marketingtest.New()
	svc, err := marketing.NewService(repo, client, marketing.WithIdentity(session))
	require.NoError(t, err)

	gate, err := auth.NewMiddleware(auth.IdentityResolverFunc(func(*http.Request) (*auth.Identity, error) {
		if ident := session.CurrentIdentity(); ident != nil {
			return ident, nil
		}
		return nil, auth.ErrNoSession
	}))
	require.NoError(t, err)

	gen := &fakeGenerator{}
	opts := []Option{WithGate(gate), WithWaitLimit(2 * time.Second), WithAuthenticator(fakeAuth{session: session})}
	if withGenerator {
		opts = append(opts, WithGenerator(gen))
	}
	h, err := New(svc, session, opts...)
	require.NoError(t, err)

	srv := httpx.NewServer(httpx.WithLogger(nil), httpx.WithValidators(RequireJSON))
	srv.RegisterRoutes(h.Register)
	ts := httpx.NewTestServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &env{
		http:    httpx.NewClient(httpx.WithBaseURL(ts.BaseURL()), httpx.WithClientTimeout(3*time.Second)),
		svc:     svc,
		repo:    repo,
		session: session,
		gen:     gen,
	}
}

func (e *env) seedCampaign(t *testing.T) marketing.Campaign {
	t.Helper()
	ctx := context.Background()
	p, err := e.svc.SaveAsset(ctx, marketing.Asset{Kind: marketing.KindProducts, Name: "Serum"})
	require.NoError(t, err)
	a, err := e.svc.SaveAsset(ctx, marketing.Asset{Kind: marketing.KindAudiences, Name: "Runners"})
	require.NoError(t, err)
	x, err := e.svc.SaveAsset(ctx, marketing.Asset{Kind: marketing.KindExperts, Name: "Dr. Ana"})
	require.NoError(t, err)
	c, err := e.svc.CreateCampaign(ctx, marketing.Campaign{
		Name: "Spring", Objective: "launch", ProductID: p.ID, AudienceID: a.ID, ExpertID: x.ID,
	})
	require.NoError(t, err)
	return c
}

func TestHealthIsOpenAndAPIIsGated(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	var health map[string]string
	_, err := e.http.Get(ctx, "/health", &health)
	require.NoError(t, err)
	assert.Equal(t, "ok", health["status"])

	e.session.set(nil)
	_, err = e.http.Get(ctx, "/api/campaigns", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, httpx.StatusCode(err))
}

func TestSessionEndpoint(t *testing.T) {
	e := newEnv(t, false)
	var got sessionResponse
	_, err := e.http.Get(context.Background(), "/api/session", &got)
	require.NoError(t, err)
	require.NotNil(t, got.Identity)
	assert.Equal(t, "user-1", got.Identity.ID)
	require.NotNil(t, got.Profile)
	assert.Equal(t, "pro", got.Profile.SubscriptionTier)
}

func TestCreateAndListCampaigns(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	seeded := e.seedCampaign(t)

	var created marketing.Campaign
	_, err := e.http.Post(ctx, "/api/campaigns", campaignRequest{
		Name: "Summer", ProductID: seeded.ProductID, AudienceID: seeded.AudienceID, ExpertID: seeded.ExpertID,
	}, &created)
	require.NoError(t, err)
	assert.Equal(t, marketing.CampaignActive, created.Status)
	assert.Equal(t, "user-1", created.UserID)

	var snap Snapshot[[]marketing.Campaign]
	_, err = e.http.Get(ctx, "/api/campaigns?wait=1", &snap)
	require.NoError(t, err)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Error)
	require.Len(t, snap.Data, 2)
	assert.Equal(t, "Serum", snap.Data[0].ProductName)

	_, err = e.http.Post(ctx, "/api/campaigns", campaignRequest{Name: "No assets"}, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpx.StatusCode(err))
}

func TestReadServesCachedDataWhenRevalidationFails(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	e.seedCampaign(t)

	var snap Snapshot[[]marketing.Campaign]
	_, err := e.http.Get(ctx, "/api/campaigns?wait=1", &snap)
	require.NoError(t, err)
	require.Len(t, snap.Data, 1)

	e.repo.SetErr(errors.New("database unreachable"))
	snap = Snapshot[[]marketing.Campaign]{}
	_, err = e.http.Get(ctx, "/api/campaigns?wait=true", &snap)
	require.NoError(t, err)
	require.Len(t, snap.Data, 1)
	assert.Equal(t, "Spring", snap.Data[0].Name)
	assert.False(t, snap.Loading)
	assert.Contains(t, snap.Error, "database unreachable")
}

func TestCampaignDetailAndDelete(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	c := e.seedCampaign(t)

	var detail Snapshot[marketing.CampaignDetail]
	_, err := e.http.Get(ctx, "/api/campaigns/"+c.ID+"?wait=1", &detail)
	require.NoError(t, err)
	require.NotNil(t, detail.Data.Expert)
	assert.Equal(t, "Dr. Ana", detail.Data.Expert.Name)

	var content Snapshot[[]marketing.GeneratedContent]
	_, err = e.http.Get(ctx, "/api/campaigns/"+c.ID+"/content?wait=1", &content)
	require.NoError(t, err)
	assert.Empty(t, content.Data)

	_, err = e.http.Delete(ctx, "/api/campaigns/"+c.ID, nil)
	require.NoError(t, err)
	_, err = e.http.Delete(ctx, "/api/campaigns/"+c.ID, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httpx.StatusCode(err))

	detail = Snapshot[marketing.CampaignDetail]{}
	_, err = e.http.Get(ctx, "/api/campaigns/"+c.ID+"?wait=1", &detail)
	require.NoError(t, err)
	assert.Contains(t, detail.Error, marketing.ErrNotFound.Error())
}

func TestAssetRoutes(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	var saved marketing.Asset
	_, err := e.http.Post(ctx, "/api/assets/products",
		map[string]any{"name": "Serum", "price_info": "R$ 99"}, &saved)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	assert.Equal(t, "R$ 99", saved.Attr("price_info"))

	var list Snapshot[[]marketing.Asset]
	_, err = e.http.Get(ctx, "/api/assets/products?wait=1", &list)
	require.NoError(t, err)
	require.Len(t, list.Data, 1)

	_, err = e.http.Delete(ctx, "/api/assets/products/"+saved.ID, nil)
	require.NoError(t, err)

	list = Snapshot[[]marketing.Asset]{}
	_, err = e.http.Get(ctx, "/api/assets/products?wait=1", &list)
	require.NoError(t, err)
	assert.Empty(t, list.Data)

	_, err = e.http.Get(ctx, "/api/assets/villains", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpx.StatusCode(err))
}

func TestGenerateEmailSavesContent(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	c := e.seedCampaign(t)

	var saved marketing.GeneratedContent
	_, err := e.http.Post(ctx, "/api/generate/email", GenerateRequest{CampaignID: c.ID}, &saved)
	require.NoError(t, err)
	assert.Equal(t, marketing.ContentEmail, saved.Type)
	assert.Equal(t, "Launch day", saved.Title)
	require.NotNil(t, saved.CampaignID)
	assert.Equal(t, c.ID, *saved.CampaignID)

	emails := e.gen.emailRequests()
	require.Len(t, emails, 1)
	assert.Equal(t, contentapi.EmailRequest{Product: "Serum", Audience: "Runners", Objective: "launch"}, emails[0])

	var list Snapshot[[]marketing.GeneratedContent]
	_, err = e.http.Get(ctx, "/api/content/email?wait=1", &list)
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Spring", list.Data[0].CampaignName)
}

func TestGenerateContentUsesSignedInUser(t *testing.T) {
	e := newEnv(t, true)
	var saved marketing.GeneratedContent
	_, err := e.http.Post(context.Background(), "/api/generate/content", GenerateRequest{Message: "a post"}, &saved)
	require.NoError(t, err)
	assert.Equal(t, marketing.ContentGeneric.DefaultTitle(), saved.Title)
	assert.JSONEq(t, `{"text":"copy for user-1: a post"}`, string(saved.Content))
}

func TestGenerateErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		e := newEnv(t, false)
		_, err := e.http.Post(ctx, "/api/generate/ugc", GenerateRequest{CampaignID: "x"}, nil)
		assert.Equal(t, http.StatusServiceUnavailable, httpx.StatusCode(err))
	})

	t.Run("unknown kind", func(t *testing.T) {
		e := newEnv(t, true)
		_, err := e.http.Post(ctx, "/api/generate/poem", GenerateRequest{}, nil)
		assert.Equal(t, http.StatusBadRequest, httpx.StatusCode(err))
	})

	t.Run("missing campaign", func(t *testing.T) {
		e := newEnv(t, true)
		_, err := e.http.Post(ctx, "/api/generate/static-ad", GenerateRequest{CampaignID: "nope"}, nil)
		assert.Equal(t, http.StatusNotFound, httpx.StatusCode(err))
	})

	t.Run("upstream failure", func(t *testing.T) {
		e := newEnv(t, true)
		c := e.seedCampaign(t)
		e.gen.fail(&httpx.StatusError{Code: http.StatusInternalServerError, Body: []byte("agent down")})
		_, err := e.http.Post(ctx, "/api/generate/ugc", GenerateRequest{CampaignID: c.ID}, nil)
		assert.Equal(t, http.StatusBadGateway, httpx.StatusCode(err))
		assert.Zero(t, e.repo.Calls("InsertContent"))
	})
}

func TestKnowledgeUpload(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	var saved marketing.KnowledgeFile
	_, err := e.http.Post(ctx, "/api/brain/files", uploadRequest{Name: "faq.txt", Content: "We ship in 3 days."}, &saved)
	require.NoError(t, err)
	assert.Equal(t, int64(len("We ship in 3 days.")), saved.SizeBytes)

	var files Snapshot[[]marketing.KnowledgeFile]
	_, err = e.http.Get(ctx, "/api/brain/files?wait=1", &files)
	require.NoError(t, err)
	require.Len(t, files.Data, 1)
	assert.Equal(t, "faq.txt", files.Data[0].Name)

	_, err = e.http.Post(ctx, "/api/brain/files", uploadRequest{Name: "empty.txt"}, nil)
	assert.Equal(t, http.StatusBadRequest, httpx.StatusCode(err))
}

func TestBrandVoiceRoutes(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	_, err := e.http.Put(ctx, "/api/brain/voice", brandVoiceRequest{Tags: []string{"warm"}, Description: "friendly"}, nil)
	require.NoError(t, err)

	var voice Snapshot[marketing.BrandVoice]
	_, err = e.http.Get(ctx, "/api/brain/voice?wait=1", &voice)
	require.NoError(t, err)
	assert.Equal(t, []string{"warm"}, voice.Data.Tags)
	assert.Equal(t, "user-1", voice.Data.UserID)
}

func TestOverviewCounts(t *testing.T) {
	e := newEnv(t, false)
	e.seedCampaign(t)

	var got Overview
	_, err := e.http.Get(context.Background(), "/api/overview", &got)
	require.NoError(t, err)
	assert.Empty(t, got.Errors)
	assert.Equal(t, map[string]int{
		"campaigns": 1, "knowledge_files": 0, "products": 1, "audiences": 1, "experts": 1,
	}, got.Counts)
}

func TestLoginAndLogout(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	e.session.set(nil)

	_, err := e.http.Post(ctx, "/auth/login", loginRequest{Email: "ana@example.com", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, httpx.StatusCode(err))

	var got sessionResponse
	_, err = e.http.Post(ctx, "/auth/login", loginRequest{Email: "ana@example.com", Password: "secret"}, &got)
	require.NoError(t, err)
	require.NotNil(t, got.Identity)
	assert.Equal(t, "ana@example.com", got.Identity.Email)

	_, err = e.http.Get(ctx, "/api/session", nil)
	require.NoError(t, err)

	_, err = e.http.Post(ctx, "/api/logout", nil, nil)
	require.NoError(t, err)
	_, err = e.http.Get(ctx, "/api/session", nil)
	assert.Equal(t, http.StatusUnauthorized, httpx.StatusCode(err))
}

func TestNonJSONBodyRejected(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	_, err := e.http.Post(ctx, "/api/campaigns", "name=Spring", nil,
		httpx.WithHeader(httpx.HeaderContentType, "text/plain"))
	assert.Equal(t, http.StatusUnsupportedMediaType, httpx.StatusCode(err))
	assert.Zero(t, e.repo.Calls("CreateCampaign"))

	_, err = e.http.Post(ctx, "/api/logout", nil, nil)
	assert.NoError(t, err, "empty bodies pass")
}
