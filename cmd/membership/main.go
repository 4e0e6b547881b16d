// cmd/membership/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"bookworm/internal/auth"
	"bookworm/internal/config"
	"bookworm/internal/database"
	"bookworm/internal/eventstore"
	"bookworm/internal/httpx"
	"bookworm/internal/membership"
	"bookworm/internal/server"
	"bookworm/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("membership service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("membership", 8082)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := config.SetupLogger(cfg)
	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Service, cfg.OTLPEndpoint, logger)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	var (
		repo    membership.Repository
		checker server.ReadinessChecker
	)
	switch cfg.Store {
	case config.StoreMemory:
		repo = membership.NewMemoryRepository(eventstore.NewMemoryStore())
		logger.Warn("using in-memory store, data is lost on restart")
	default:
		if cfg.AutoMigrate {
			if err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
				return err
			}
		}
		db, err := database.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		repo = membership.NewPostgresRepository(db, eventstore.NewPostgresStore(db.DB))
		checker = database.NewReadinessChecker(db)
	}

	limiter := rate.NewLimiter(rate.Every(cfg.LoginInterval), cfg.LoginBurst)
	svc := membership.NewService(repo, limiter, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestLogger(logger))
	r.Use(httpx.Metrics(cfg.Service))

	server.MountHealth(r, cfg.Service, checker)
	r.Handle("/metrics", promhttp.Handler())
	membership.NewHandler(svc, logger).Mount(r, auth.NewAuthenticator(cfg.JWTSecret))

	return server.New(cfg, logger, r).Run()
}
