package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"unisaved/internal/config"
	"unisaved/internal/credentials"
	"unisaved/internal/domain"
	"unisaved/internal/logger"
	"unisaved/internal/repository"
	"unisaved/internal/service"
	"unisaved/internal/source"
	"unisaved/internal/source/raindrop"
	"unisaved/internal/source/reddit"
	"unisaved/internal/source/youtube"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "unisaved-sync",
	})
	logger.SetDefaultLogger(appLogger)

	sourceName := flag.String("source", "", "Source to sync (raindrop, youtube, reddit)")
	force := flag.Bool("force", false, "Request the maximum retrievable window")
	gdprCSV := flag.String("gdpr-csv", "", "Import Reddit GDPR saved_posts.csv instead of a live sync")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	itemRepo := repository.NewItemRepository(db)
	runRepo := repository.NewSyncRunRepository(db)
	credStore := credentials.NewKeyringStore()

	redditAdapter := reddit.NewAdapter(&cfg.Sources.Reddit, credStore)
	sources := map[string]source.Source{
		raindrop.SourceID: raindrop.NewAdapter(&cfg.Sources.Raindrop, credStore),
		youtube.SourceID:  youtube.NewAdapter(&cfg.Sources.YouTube, credStore),
		reddit.SourceID:   redditAdapter,
	}

	coordinator := service.NewCoordinator(
		itemRepo,
		runRepo,
		sources,
		appLogger,
		&service.Config{ProgressLogInterval: cfg.Sync.ProgressLogInterval},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	if reaped, err := runRepo.ReapStale(ctx, cfg.Sync.StaleRunTimeout); err != nil {
		appLogger.WithError(err).Warn("Failed to reap stale sync runs")
	} else if reaped > 0 {
		appLogger.WithField(logger.FieldCount, reaped).Warn("Marked stale sync runs as failed")
	}

	if *gdprCSV != "" {
		importer := reddit.NewGDPRImporter(redditAdapter, *gdprCSV, cfg.Sources.Reddit.GDPRWorkers)
		run, err := coordinator.RunWith(ctx, importer, true)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to start GDPR import")
		}
		report(run, appLogger)
		if run.Status == domain.RunStatusFailed {
			os.Exit(1)
		}
		return
	}

	if *sourceName == "" {
		appLogger.WithField("sources", strings.Join(coordinator.Sources(), ", ")).
			Fatal("No source given; pass -source")
	}

	run, err := coordinator.Run(ctx, *sourceName, *force)
	if err != nil {
		appLogger.WithError(err).Fatal("Sync failed to start")
	}

	report(run, appLogger)
	if run.Status == domain.RunStatusFailed {
		os.Exit(1)
	}
}

func report(run *domain.SyncRun, log *logger.Logger) {
	fields := logger.Fields{
		logger.FieldRunID:  run.ID,
		logger.FieldSource: run.Source,
		logger.FieldStatus: run.Status,
		"items_synced":     run.ItemsIngested,
	}
	if run.Errors != "" {
		fields["errors"] = run.Errors
	}
	log.WithFields(fields).Info("Sync finished")
}
