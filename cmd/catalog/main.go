// cmd/catalog/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bookworm/internal/auth"
	"bookworm/internal/catalog"
	"bookworm/internal/clients"
	"bookworm/internal/config"
	"bookworm/internal/database"
	"bookworm/internal/eventstore"
	"bookworm/internal/httpx"
	"bookworm/internal/server"
	"bookworm/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("catalog service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("catalog", 8081)
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
		repo    catalog.Repository
		events  eventstore.Reader
		checker server.ReadinessChecker
	)
	switch cfg.Store {
	case config.StoreMemory:
		store := eventstore.NewMemoryStore()
		repo, events = catalog.NewMemoryRepository(store, clients.NewMembershipClient(cfg.MembershipURL)), store
		logger.Warn("using in-memory store, data is lost on restart",
			slog.String("reviewer_names_from", cfg.MembershipURL))
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
		store := eventstore.NewPostgresStore(db.DB)
		repo, events = catalog.NewPostgresRepository(db, store), store
		checker = database.NewReadinessChecker(db)
	}

	svc := catalog.NewService(repo, events, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestLogger(logger))
	r.Use(httpx.Metrics(cfg.Service))

	server.MountHealth(r, cfg.Service, checker)
	r.Handle("/metrics", promhttp.Handler())
	catalog.NewHandler(svc, logger).Mount(r, auth.NewAuthenticator(cfg.JWTSecret))

	return server.New(cfg, logger, r).Run()
}
