// Kestrel - Claim fraud scoring for insurers.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/coverage"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/model"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default "+config.DefaultPath+" if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))
	if !cfg.Tracing.Enabled {
		// Spans still carry request and trace ids but are never recorded.
		otel.SetTracerProvider(noop.NewTracerProvider())
	}

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"worker", cfg.Worker.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("kestrel failed", "error", err)
		os.Exit(1)
	}
	slog.Info("kestrel shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config) error {
	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initializing repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initializing event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Exclusion rules: builtins overlaid with stored rules
	ruleEngine, err := rules.NewEngine(100)
	if err != nil {
		return fmt.Errorf("initializing rule engine: %w", err)
	}
	defer ruleEngine.Close()
	if err := loadRules(ctx, repo, ruleEngine); err != nil {
		return err
	}
	slog.Info("rule engine initialized", "rules_count", ruleEngine.RulesCount())

	detectors, err := buildDetectors(ctx, cfg, repo, cacheImpl)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine, err := scoring.NewEngine(cfg.Scoring, repo, scoring.NewMetrics(registry), detectors...)
	if err != nil {
		return fmt.Errorf("initializing scoring engine: %w", err)
	}
	slog.Info("scoring engine initialized", "detectors", len(detectors))

	pipeline := worker.NewPipeline(
		engine,
		decision.NewPolicy(cfg.Decision),
		coverage.New(repo, ruleEngine),
		repo,
		busImpl,
	)

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, pipeline)
		if err := asyncWorker.Start(worker.Config{TenantIDs: cfg.Worker.TenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:     repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Pipeline: pipeline,
		Scoring:  engine,
		Rules:    ruleEngine,
		Worker:   asyncWorker,
		Registry: registry,
		Version:  Version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	// Stop consuming before the server and backends go away
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	return nil
}

// buildDetectors assembles the six detectors in fusion order.
func buildDetectors(ctx context.Context, cfg *domain.Config, repo domain.Repository, c domain.Cache) ([]detect.Detector, error) {
	watchlist := detect.NewWatchlistChecker()
	if path := cfg.Watchlist.Path; path != "" {
		if err := watchlist.LoadFile(path); err != nil {
			return nil, fmt.Errorf("loading watchlist: %w", err)
		}
		if cfg.Watchlist.Watch {
			if err := watchlist.Watch(ctx, path); err != nil {
				slog.Warn("watchlist hot reload disabled", "path", path, "error", err)
			}
		}
	}
	claimants, providers := watchlist.Size()
	slog.Info("watchlist loaded", "claimants", claimants, "providers", providers)

	fraudModel, err := model.Load(cfg.Anomaly.ModelPath, detect.FeatureCount)
	if err != nil {
		return nil, fmt.Errorf("loading fraud model: %w", err)
	}
	slog.Info("fraud model", "available", fraudModel.Available(), "version", fraudModel.Version)

	outliers := detect.NewOutlierModel(cfg.Anomaly, uint64(time.Now().UnixNano()))
	claims := history.NewService(repo, c, cfg.Network.RefreshInterval)

	return []detect.Detector{
		detect.NewAnomalyDetector(fraudModel, outliers),
		detect.NewConsistencyChecker(),
		detect.NewDuplicateDetector(c),
		detect.NewNetworkAnalyzer(claims, cfg.Network),
		detect.NewTimingAnalyzer(),
		watchlist,
	}, nil
}

// loadRules loads the builtin exclusion rules overlaid with the stored ones.
// A failed lookup falls back to the builtins.
func loadRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	stored, err := repo.ListExclusionRules(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list exclusion rules from database", "error", err)
		stored = nil
	}

	if err := engine.LoadRules(rules.WithBuiltins(stored)); err != nil {
		return fmt.Errorf("loading exclusion rules: %w", err)
	}
	slog.Info("exclusion rules loaded", "stored", len(stored))
	return nil
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |                 KESTREL                   |")
	fmt.Println("  |        Claim Fraud Scoring Engine         |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST  /claims/score             - Score a claim")
	fmt.Println("    POST  /claims                   - Queue a claim for async scoring")
	fmt.Println("    GET   /claims/{id}/assessment   - Get a claim's assessment")
	fmt.Println("    GET   /review-queue             - List the human review queue")
	fmt.Println("    PATCH /review-queue/{claimId}   - Resolve a review")
	fmt.Println("    POST  /policies                 - Store a policy")
	fmt.Println("    POST  /rules/reload             - Hot-reload exclusion rules")
	fmt.Println("    GET   /stats                    - Scoring statistics")
	fmt.Println("    GET   /health                   - Health check")
	fmt.Println("    GET   /metrics                  - Prometheus metrics")
	fmt.Println()
}
