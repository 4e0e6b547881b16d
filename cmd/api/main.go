// cmd/api/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bookworm/internal/config"
	"bookworm/internal/gateway"
	"bookworm/internal/httpx"
	"bookworm/internal/server"
	"bookworm/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api gateway failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("api", 8080)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := config.SetupLogger(cfg)

	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.Service, cfg.OTLPEndpoint, logger)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	routes, err := gateway.Routes(cfg.CatalogURL, cfg.MembershipURL)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestLogger(logger))
	r.Use(httpx.Metrics(cfg.Service))

	server.MountHealth(r, cfg.Service, nil)
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(gateway.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware)
		gateway.Mount(r, routes, logger)
	})

	return server.New(cfg, logger, r).Run()
}
