package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/dashboard"
	"github.com/adeilh/aura/httpx"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// accessTokenCookie is where browser clients of the identity service keep
// the access token.
const accessTokenCookie = "sb-access-token"

func newServeCmd(a *app) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API for the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if address != "" {
				a.cfg.Server.Address = address
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "listen address (overrides server.address)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	p, err := a.session(ctx)
	if err != nil {
		return err
	}
	if p.CurrentIdentity() == nil {
		a.logger.Warn("no session yet; /api answers 401 until `aura login` succeeds")
	}
	svc, err := a.marketingService(ctx)
	if err != nil {
		return err
	}
	gen, err := a.contentAPI()
	if err != nil {
		return err
	}
	gate, err := auth.RequireIdentity(p,
		auth.WithSkipper(func(r *http.Request) bool { return r.Method == http.MethodOptions }),
		auth.WithTokenCheck(a.tokenParser(), auth.ChainExtractors(
			auth.BearerTokenExtractor(),
			auth.CookieTokenExtractor(accessTokenCookie),
		)))
	if err != nil {
		return err
	}
	h, err := dashboard.New(svc, p,
		dashboard.WithGate(gate),
		dashboard.WithGenerator(gen),
		dashboard.WithAuthenticator(dashboardAuth{source: a.source, provider: p}),
		dashboard.WithLogger(a.logger))
	if err != nil {
		return err
	}

	cors := httpx.DefaultCORSConfig
	cors.AllowOrigins = a.cfg.Server.AllowedOrigins
	cors.AllowCredentials = true
	srv := httpx.NewServer(
		httpx.WithAddress(a.cfg.Server.Address),
		httpx.WithLogger(a.logger),
		httpx.WithCORS(&cors),
		httpx.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout),
		httpx.AppendMiddlewares(httpx.BodyLimitMiddleware(a.cfg.Server.BodyLimit)),
		httpx.WithValidators(dashboard.RequireJSON),
	)
	srv.RegisterRoutes(h.Register)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("dashboard listening", slog.String("address", srv.Address()))
		return srv.Start(gctx, httpx.WithShutdownTimeout(10*time.Second))
	})
	g.Go(func() error {
		healthCtx, cancel := context.WithTimeout(gctx, 5*time.Second)
		defer cancel()
		if err := gen.Health(healthCtx); err != nil {
			a.logger.Warn("content api unreachable; generation requests will fail", slog.Any("error", err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
