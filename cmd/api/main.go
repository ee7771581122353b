package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/complyco/entity-screening-backend/internal/api/rest"
	"github.com/complyco/entity-screening-backend/internal/infrastructure/cache"
	"github.com/complyco/entity-screening-backend/internal/infrastructure/config"
	"github.com/complyco/entity-screening-backend/internal/infrastructure/database"
	"github.com/complyco/entity-screening-backend/internal/infrastructure/queue"
	"github.com/complyco/entity-screening-backend/internal/infrastructure/repository"
	"github.com/complyco/entity-screening-backend/internal/infrastructure/telemetry"
	"github.com/complyco/entity-screening-backend/internal/metrics"
	"github.com/complyco/entity-screening-backend/internal/service/matching"
	"github.com/complyco/entity-screening-backend/internal/service/providers"
	"github.com/complyco/entity-screening-backend/internal/service/scoring"
	"github.com/complyco/entity-screening-backend/internal/service/screening"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := telemetry.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting entity screening service",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Infrastructure
	db, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewClient(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("connecting redis: %w", err)
	}
	defer redisClient.Close()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg := metrics.NewRegistry(promReg)

	jobQueue := queue.NewJobQueue(redisClient.Redis(), cfg.Queue, logger, reg)

	// Repositories
	results := repository.NewResultRepository(db)
	watchlists := repository.NewCachedWatchlistStore(
		repository.NewWatchlistRepository(db),
		redisClient,
		cfg.Screening.WatchlistTTL,
		logger,
	)

	// Bureau adapters behind per-provider breakers
	manager := providers.NewManager(cfg.Breaker, logger, reg)
	for name, bureauCfg := range cfg.Bureaus {
		client, err := newBureauClient(name, bureauCfg, logger)
		if err != nil {
			return err
		}
		if err := manager.Register(client); err != nil {
			return fmt.Errorf("registering bureau %s: %w", name, err)
		}
	}
	logger.Info("bureau adapters registered", zap.Strings("providers", manager.Providers()))

	// Screening core
	service := screening.NewService(
		screening.Config{
			MatchThreshold: cfg.Screening.MatchThreshold,
			JobTimeout:     cfg.Screening.JobTimeout,
			DedupeWindow:   cfg.Screening.DedupeWindow,
		},
		watchlists,
		results,
		matching.NewEngine(),
		scoring.NewEngine(cfg.Scoring),
		manager,
		jobQueue,
		redisClient,
		redisClient,
		logger,
		reg,
	)

	pool := screening.NewWorkerPool(service, jobQueue, cfg.Screening.Workers, logger)
	pool.Start(ctx)
	go jobQueue.RunPromoter(ctx)

	// HTTP surface
	mux := http.NewServeMux()
	rest.NewHandlers(service, watchlists, manager, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: rest.Chain(mux,
			rest.RequestIDMiddleware(),
			rest.LoggingMiddleware(logger),
			rest.RecoveryMiddleware(logger),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}

	// Workers stop after finishing in-flight jobs.
	pool.Wait()
	logger.Info("shutdown complete")
	return nil
}

func newBureauClient(name string, cfg providers.BureauConfig, logger *zap.Logger) (providers.BureauClient, error) {
	switch name {
	case "experian":
		return providers.NewExperianClient(cfg, logger), nil
	case "equifax":
		return providers.NewEquifaxClient(cfg, logger), nil
	case "transunion":
		return providers.NewTransUnionClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown bureau in config: %s", name)
	}
}
