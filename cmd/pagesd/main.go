package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sberz/sandbox-pages/internal/ghpages"
	"github.com/sberz/sandbox-pages/internal/store"
	"github.com/sberz/sandbox-pages/internal/templates"
	"github.com/sberz/sandbox-pages/internal/token"
)

var logLevel = &slog.LevelVar{}

var (
	deploymentsTotalOpt = prometheus.GaugeOpts{
		Name: "sandboxpages_deployments_total",
		Help: "Total number of sandboxes with a recorded deployment",
	}
)

func main() {
	ctx := context.Background()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: false,
		Level:     logLevel,
	})))

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.ErrorContext(ctx, "failed to run pagesd", "error", err)
		os.Exit(1)
	}

	os.Exit(0)
}

func run(ctx context.Context, args []string) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	cfg, err := parseConfig(args, os.Stderr)
	if err != nil {
		return fmt.Errorf("can not load config: %w", err)
	}
	logLevel.Set(cfg.LogLevel)

	slog.DebugContext(ctx, "Starting pagesd service", "args", args)

	registry, err := templates.NewRegistry(cfg.Templates...)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	source, err := setupTokenSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to set up token source: %w", err)
	}
	tokens := token.NewCache(source, token.WithTTL(cfg.Token.CacheTTL))

	client, err := ghpages.NewClient(cfg.Builder, tokens, registry)
	if err != nil {
		return fmt.Errorf("failed to create build service client: %w", err)
	}

	provider, providerName, err := setupDeployProvider(ctx, cfg, client, registry)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Deploy provider ready", "provider", providerName, "builder", cfg.Builder.BaseURL)

	deployments := store.NewStore()

	promauto.NewGaugeFunc(deploymentsTotalOpt, func() float64 {
		return float64(deployments.GetDeploymentCount(ctx))
	})

	// Start the HTTP server
	slog.DebugContext(ctx, "Starting HTTP server", "port", cfg.Port)

	server := http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewServerHandler(client, deployer{provider: provider, name: providerName}, deployments, registry),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Builder.Timeout + 10*time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	if cfg.MetricsPort != 0 {
		slog.DebugContext(ctx, "Starting metrics server", "port", cfg.MetricsPort)

		http.Handle("/metrics", promhttp.Handler())
		go func() {
			//nolint:gosec // G114 - not relevant for this internal only server
			if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.MetricsPort), nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.ErrorContext(ctx, "Metrics server failed", "error", err)
				os.Exit(1)
			}
		}()
	}

	slog.InfoContext(ctx, "pagesd service started", "address", server.Addr)

	// Wait for the server to shut down gracefully
	<-ctx.Done()
	slog.InfoContext(ctx, "Shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server gracefully: %w", err)
	}

	return nil
}
