package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"unisaved/internal/api"
	"unisaved/internal/api/middleware"
	"unisaved/internal/config"
	"unisaved/internal/credentials"
	"unisaved/internal/logger"
	"unisaved/internal/repository"
	"unisaved/internal/service"
	"unisaved/internal/source"
	"unisaved/internal/source/raindrop"
	"unisaved/internal/source/reddit"
	"unisaved/internal/source/youtube"
	"unisaved/internal/storage"
)

func main() {
	// Initialize logger first (with env-driven rotation settings)
	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	itemRepo := repository.NewItemRepository(db)
	runRepo := repository.NewSyncRunRepository(db)

	ctx := context.Background()

	// Runs left open by a previous crash would block triggers forever.
	if reaped, err := runRepo.ReapStale(ctx, cfg.Sync.StaleRunTimeout); err != nil {
		appLogger.WithError(err).Warn("Failed to reap stale sync runs")
	} else if reaped > 0 {
		appLogger.WithField(logger.FieldCount, reaped).Warn("Marked stale sync runs as failed")
	}

	if cfg.Sync.HistoryRetentionDays > 0 {
		if removed, err := runRepo.Cleanup(ctx, cfg.Sync.HistoryRetentionDays); err != nil {
			appLogger.WithError(err).Warn("Failed to clean up sync history")
		} else if removed > 0 {
			appLogger.WithField(logger.FieldCount, removed).Info("Cleaned up old sync history")
		}
	}

	credStore := credentials.NewKeyringStore()

	redditAdapter := reddit.NewAdapter(&cfg.Sources.Reddit, credStore)
	sources := map[string]source.Source{
		raindrop.SourceID: raindrop.NewAdapter(&cfg.Sources.Raindrop, credStore),
		youtube.SourceID:  youtube.NewAdapter(&cfg.Sources.YouTube, credStore),
		reddit.SourceID:   redditAdapter,
	}

	// Optional thumbnail archiving into S3-compatible storage
	var hooks []service.ItemHook
	if cfg.Storage.ThumbnailArchive.Enabled {
		objectStorage, err := storage.NewS3Storage(&cfg.Storage.ThumbnailArchive)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
		hooks = append(hooks, storage.NewThumbnailArchiver(objectStorage, itemRepo))
		appLogger.WithField("bucket", cfg.Storage.ThumbnailArchive.Bucket).Info("Thumbnail archiving enabled")
	}

	coordinator := service.NewCoordinator(
		itemRepo,
		runRepo,
		sources,
		appLogger,
		&service.Config{ProgressLogInterval: cfg.Sync.ProgressLogInterval},
		hooks...,
	)

	router := api.SetupRouter(&api.RouterConfig{
		Coordinator: coordinator,
		Credentials: credStore,
		Logger:      appLogger,
		Mode:        cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		GDPRFactory: func(csvPath string) source.Source {
			return reddit.NewGDPRImporter(redditAdapter, csvPath, cfg.Sources.Reddit.GDPRWorkers)
		},
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
