package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"medialib/internal/bulk"
	"medialib/internal/cache"
	"medialib/internal/config"
	"medialib/internal/database"
	"medialib/internal/handlers"
	"medialib/internal/jobs"
	"medialib/internal/log"
	"medialib/internal/media/watermark"
	"medialib/internal/metrics"
	"medialib/internal/repository"
	"medialib/internal/server"
	"medialib/internal/service"
	"medialib/internal/storage"
	"medialib/internal/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New("medialib-api", cfg.Environment)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	folders := repository.NewFolderRepository(dbPool)
	assets := repository.NewAssetRepository(dbPool)
	lib := repository.NewLibrary(folders, assets, objectStore, logger)

	bulkOpts := []bulk.Option{
		bulk.WithMetrics(m),
		bulk.WithConcurrency(cfg.Library.Concurrency),
	}
	if cfg.Library.DistributedLock {
		bulkOpts = append(bulkOpts, bulk.WithLock(bulk.NewRedisLock(redisClient, cache.Key("bulk", "lock"), cfg.Library.LockTTL)))
	}
	bulkCoordinator := bulk.NewCoordinator(lib, logger, bulkOpts...)

	uploads := upload.NewCoordinator(
		service.NewUploadIssuer(assets, objectStore),
		upload.NewHTTPTransferer(&http.Client{Timeout: cfg.Editor.TransferTimeout}),
		m,
		logger,
	)

	marks := watermark.NewRedisStore(redisClient, cfg.Watermark.SettingsKey)
	logos, err := watermark.NewLogoLoader(&http.Client{Timeout: cfg.Watermark.LogoFetchTimeout}, cfg.Watermark.LogoCacheSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init logo loader")
	}
	editor := service.NewEditorService(assets, objectStore, uploads, marks, logos, m, cfg.Editor, logger)

	handlerSet := handlers.NewHandlerSet(logger, handlers.Deps{
		Environment: cfg.Environment,
		JWTSecret:   cfg.Security.JWTAccessSecret,
		Library:     lib,
		Bulk:        bulkCoordinator,
		Editor:      editor,
		Watermarks:  marks,
		Logos:       logos,
		Checks: map[string]handlers.Pinger{
			"postgres": dbPool,
			"redis": handlers.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		},
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(assets, objectStore, cfg.Jobs, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduler jobs still running at exit")
	}

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
