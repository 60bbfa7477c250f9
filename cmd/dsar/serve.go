package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	jwttoken "dsar/internal/jwt_token"
	"dsar/internal/platform/httpserver"
	platformredis "dsar/internal/platform/redis"
	"dsar/internal/ratelimit"
	httptransport "dsar/internal/transport/http"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the operator HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(a *app) error {
				if addr != "" {
					a.cfg.Server.Addr = addr
				}
				return serve(cmd.Context(), a)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides DSAR_HTTP_ADDR)")
	return cmd
}

// serve runs the API until ctx is canceled, then drains in-flight requests.
func serve(ctx context.Context, a *app) error {
	deps := httptransport.Deps{
		Runner:    a.runner,
		Compiler:  a.assembler,
		Activity:  a.activity,
		Vendors:   a.registry,
		OutputDir: a.cfg.OutputDir,
		ExportDir: a.cfg.Server.ExportDir,
		Company:   a.meta(),
		Logger:    a.logger,
		Metrics:   a.metrics,
	}
	if a.cfg.Server.JWTSigningKey != "" {
		svc := jwttoken.NewJWTService(a.cfg.Server.JWTSigningKey, a.cfg.Server.JWTIssuer)
		deps.JWTValidator = jwttoken.NewJWTServiceAdapter(svc)
	} else {
		a.logger.WarnContext(ctx, "DSAR_JWT_SIGNING_KEY is not set; the API accepts unauthenticated requests")
	}
	if deps.ExportDir == "" {
		a.logger.WarnContext(ctx, "DSAR_EXPORT_DIR is not set; run requests may name any readable path")
	}

	limiter, closeLimiter, err := newLimiter(ctx, a)
	if err != nil {
		return err
	}
	defer closeLimiter()
	deps.Limiter = limiter
	deps.RateLimit = ratelimit.Limit{Requests: a.cfg.RateLimit.Requests, Window: a.cfg.RateLimit.Window}

	srv := httpserver.New(a.cfg.Server.Addr, httptransport.NewRouter(httptransport.New(deps)))

	errCh := make(chan error, 1)
	go func() {
		a.logger.InfoContext(ctx, "starting dsar api", "addr", a.cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down dsar api")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// newLimiter shares limits through redis when DSAR_REDIS_URL is set and keeps
// them in process otherwise.
func newLimiter(ctx context.Context, a *app) (*ratelimit.Middleware, func(), error) {
	opts := []ratelimit.Option{ratelimit.WithLogger(a.logger)}
	client, err := platformredis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("rate limit store: %w", err)
	}
	if client == nil {
		return ratelimit.New(ratelimit.NewMemoryStore(), opts...), func() {}, nil
	}
	opts = append(opts, ratelimit.WithFallback(ratelimit.NewMemoryStore()))
	closer := func() {
		if err := client.Close(); err != nil {
			a.logger.Warn("close rate limit redis", "error", err)
		}
	}
	return ratelimit.New(ratelimit.NewRedisStore(client), opts...), closer, nil
}
