package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/cache"
	"github.com/adeilh/aura/cache/memory"
	"github.com/adeilh/aura/cache/redis"
	"github.com/adeilh/aura/cache/sqlite"
	"github.com/adeilh/aura/config"
	"github.com/adeilh/aura/contentapi"
	"github.com/adeilh/aura/db/sql/postgres"
	"github.com/adeilh/aura/marketing"
	"github.com/adeilh/aura/query"
	"github.com/adeilh/aura/supabase"
	"github.com/hashicorp/go-multierror"
)

var errNotSignedIn = errors.New("not signed in; run `aura login` first")

// dashboardAuth lets the browser sign in through the same source the CLI
// uses, so the provider sees the change.
type dashboardAuth struct {
	source   *auth.GoTrueSource
	provider *auth.Provider
}

func (d dashboardAuth) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	return d.source.SignIn(ctx, email, password)
}

func (d dashboardAuth) SignOut(ctx context.Context) error { return d.provider.SignOut(ctx) }

// app builds the collaborators a command needs on first use and closes
// whatever it opened.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer

	store    cache.Store
	supabase *supabase.Client
	source   *auth.GoTrueSource
	provider *auth.Provider
	repo     marketing.Repository
	profiles auth.ProfileFetcher
	service  *marketing.Service
	content  *contentapi.Client

	closers []func() error
}

func (a *app) onClose(fn func() error) { a.closers = append(a.closers, fn) }

func (a *app) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}

func (a *app) cacheStore(ctx context.Context) (cache.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	switch a.cfg.Cache.Backend {
	case config.CacheMemory:
		a.logger.Warn("memory cache selected: the session and cached queries end with the process")
		s := memory.NewStore(memory.Options{})
		a.onClose(s.Close)
		a.store = s
	case config.CacheRedis:
		s := redis.NewStore(redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			Prefix:   "aura:",
		})
		a.onClose(s.Close)
		if err := s.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		a.store = s
	default:
		if err := os.MkdirAll(filepath.Dir(a.cfg.Cache.Path), 0o700); err != nil {
			return nil, fmt.Errorf("sqlite cache: %w", err)
		}
		s, err := sqlite.Open(ctx, sqlite.WithPath(a.cfg.Cache.Path))
		if err != nil {
			return nil, fmt.Errorf("sqlite cache: %w", err)
		}
		a.onClose(s.Close)
		a.store = s
	}
	return a.store, nil
}

func (a *app) supabaseClient() (*supabase.Client, error) {
	if a.supabase != nil {
		return a.supabase, nil
	}
	c, err := supabase.New(supabase.Config{
		URL:     a.cfg.Supabase.URL,
		AnonKey: a.cfg.Supabase.AnonKey,
	}, supabase.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.supabase = c
	return c, nil
}

func (a *app) authSource(ctx context.Context) (*auth.GoTrueSource, error) {
	if a.source != nil {
		return a.source, nil
	}
	store, err := a.cacheStore(ctx)
	if err != nil {
		return nil, err
	}
	sb, err := a.supabaseClient()
	if err != nil {
		return nil, err
	}
	a.source = auth.NewGoTrueSource(sb, a.sessions(store), auth.WithSourceLogger(a.logger))
	return a.source, nil
}

func (a *app) sessions(store cache.Store) *auth.CacheSessionStore {
	return auth.NewCacheSessionStore(store, auth.SessionStoreOptions{})
}

func (a *app) dataRepository(ctx context.Context) (marketing.Repository, auth.ProfileFetcher, error) {
	if a.repo != nil {
		return a.repo, a.profiles, nil
	}
	switch a.cfg.Data.Backend {
	case config.DataPostgres:
		db, err := postgres.Connect(ctx,
			postgres.WithDSN(a.cfg.Database.DSN),
			postgres.WithMaxOpenConns(a.cfg.Database.MaxOpenConns))
		if err != nil {
			return nil, nil, err
		}
		a.onClose(db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, nil, err
		}
		repo := postgres.NewRepository(db)
		a.repo, a.profiles = repo, repo
	default:
		sb, err := a.supabaseClient()
		if err != nil {
			return nil, nil, err
		}
		a.repo, a.profiles = sb, sb
	}
	return a.repo, a.profiles, nil
}

// session starts the provider and waits for the initial resolution.
func (a *app) session(ctx context.Context) (*auth.Provider, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	src, err := a.authSource(ctx)
	if err != nil {
		return nil, err
	}
	_, profiles, err := a.dataRepository(ctx)
	if err != nil {
		return nil, err
	}
	p, err := auth.NewProvider(src,
		auth.WithProfileFetcher(profiles),
		auth.WithLogger(a.logger),
		auth.WithResolveTimeout(a.cfg.Session.ResolveTimeout))
	if err != nil {
		return nil, err
	}
	a.supabase.SetTokenSource(p)
	p.Start(ctx)
	a.onClose(func() error { p.Close(); return nil })

	select {
	case <-p.Ready():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	a.provider = p
	return p, nil
}

// signedIn returns the marketing service once a user is signed in.
func (a *app) signedIn(ctx context.Context) (*marketing.Service, error) {
	p, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	if p.CurrentIdentity() == nil {
		return nil, errNotSignedIn
	}
	return a.marketingService(ctx)
}

func (a *app) marketingService(ctx context.Context) (*marketing.Service, error) {
	if a.service != nil {
		return a.service, nil
	}
	p, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.cacheStore(ctx)
	if err != nil {
		return nil, err
	}
	client, err := query.NewClient(store,
		query.WithIdentitySource(p),
		query.WithCodec(query.CodecByName(a.cfg.Cache.Codec)),
		query.WithLogger(a.logger),
		query.WithEntryTTL(a.cfg.Cache.EntryTTL))
	if err != nil {
		return nil, err
	}
	repo, profiles, err := a.dataRepository(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := marketing.NewService(repo, client,
		marketing.WithIdentity(p),
		marketing.WithProfiles(profiles),
		marketing.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.service = svc
	return svc, nil
}

func (a *app) contentAPI() (*contentapi.Client, error) {
	if a.content != nil {
		return a.content, nil
	}
	c, err := contentapi.New(contentapi.Config{
		URL:           a.cfg.ContentAPI.URL,
		Timeout:       a.cfg.ContentAPI.Timeout,
		RatePerSecond: a.cfg.ContentAPI.RatePerSecond,
		Burst:         a.cfg.ContentAPI.Burst,
	}, contentapi.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.content = c
	return c, nil
}

// tokenParser reads access tokens handed to `aura login --access-token`.
// Without a JWT secret the claims are decoded but not verified; the
// identity service still rejects forged tokens on first use.
func (a *app) tokenParser() *auth.TokenParser {
	var secret []byte
	if a.cfg.Supabase.JWTSecret != "" {
		secret = []byte(a.cfg.Supabase.JWTSecret)
	}
	return auth.NewTokenParser(secret, auth.WithAudience("authenticated"))
}
