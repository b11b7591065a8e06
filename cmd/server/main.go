package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/adscanio/api/internal/app/analysis"
	"github.com/adscanio/api/internal/app/ingest"
	"github.com/adscanio/api/internal/app/platforms"
	"github.com/adscanio/api/internal/app/scan"
	"github.com/adscanio/api/internal/config"
	"github.com/adscanio/api/internal/infra/http"
	"github.com/adscanio/api/internal/infra/jobs"
	"github.com/adscanio/api/internal/infra/llm"
	"github.com/adscanio/api/internal/infra/postgres"
	"github.com/adscanio/api/internal/infra/redis"
	"github.com/adscanio/api/internal/infra/scraper"
	"github.com/adscanio/api/internal/infra/storage"
	"github.com/adscanio/api/pkg/logger"
	"github.com/adscanio/api/pkg/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	// ==========================================================================
	// Configuration & Logger
	// ==========================================================================
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env)

	// ==========================================================================
	// Infrastructure
	// ==========================================================================
	db, err := postgres.Open(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)
	log.Info("database connected")

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)
	log.Info("redis connected")

	store, err := storage.NewS3Store(ctx, &cfg.Storage)
	if err != nil {
		log.Error("failed to initialize object storage", "error", err)
		return 1
	}
	log.Info("object storage initialized", "bucket", cfg.Storage.Bucket)

	scraperClient := scraper.NewClient(&cfg.Scraper)

	provider, err := llm.NewGeminiProvider(llm.GeminiConfig{
		APIKey:     cfg.AI.APIKey,
		Model:      cfg.AI.Model,
		Timeout:    cfg.AI.Timeout,
		MaxRetries: cfg.AI.MaxRetries,
	})
	if err != nil {
		log.Error("failed to initialize ai provider", "error", err)
		return 1
	}
	log.Info("ai provider initialized", "model", provider.Model())

	// ==========================================================================
	// Repositories
	// ==========================================================================
	jobRepo := postgres.NewScanJobRepository(db)
	runRepo := postgres.NewRunRepository(db)
	publisherRepo := postgres.NewPublisherRepository(db)
	contentRepo := postgres.NewContentRepository(db)
	mediaRepo := postgres.NewMediaRepository(db)
	ruleRepo := postgres.NewRuleRepository(db)
	flagRepo := postgres.NewFlagRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	productRepo := postgres.NewProductRepository(db)

	// ==========================================================================
	// Job Queue
	// ==========================================================================
	jobClient := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, log)
	defer closeWithLog(jobClient, "job client", log)

	// ==========================================================================
	// Services
	// ==========================================================================
	registry := platforms.DefaultRegistry()

	exampleCache := redis.NewExampleCache(redisClient, cfg.AI.LibrarianCacheTTL)
	librarian := analysis.NewLibrarian(flagRepo, provider, exampleCache, cfg.AI.LibrarianTopK, log)
	extractor := analysis.NewExtractor(provider, log)
	evaluator := analysis.NewEvaluator(provider, librarian, log)
	resolver := analysis.NewRuleResolver(ruleRepo)
	pipeline := analysis.NewPipeline(resolver, extractor, evaluator, flagRepo, store, log)
	disposition := analysis.NewDispositionProcessor(jobRepo, flagRepo, ruleRepo, auditRepo, log)

	mediaProcessor := ingest.NewMediaProcessor(store, mediaRepo, log)
	ingester := ingest.NewIngester(registry, mediaProcessor, contentRepo, scraperClient, pipeline, log)

	aggregator := scan.NewAggregator(jobRepo, runRepo, jobClient, log)
	monitor := scan.NewMonitor(jobRepo, runRepo, publisherRepo, scraperClient, ingester, aggregator, log)
	orchestrator := scan.NewOrchestrator(jobRepo, runRepo, publisherRepo, productRepo, registry, scraperClient, cfg.Scraper.Actors, log)
	log.Info("services initialized")

	// ==========================================================================
	// Workers
	// ==========================================================================
	taskHandler := jobs.NewTaskHandler(monitor, disposition, log)
	worker := jobs.NewWorker(jobs.WorkerConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Worker.Concurrency,
	}, taskHandler, log)
	if err := worker.Start(); err != nil {
		log.Error("failed to start job worker", "error", err)
		return 1
	}

	poller := jobs.NewPoller(runRepo, monitor, cfg.Poller, log)
	if err := poller.Start(); err != nil {
		log.Error("failed to start run poller", "error", err)
		return 1
	}

	// ==========================================================================
	// HTTP Server
	// ==========================================================================
	v := validator.New()
	scanHandler := http.NewScanHandler(orchestrator, jobRepo, runRepo, v, log)
	dispositionHandler := http.NewDispositionHandler(disposition, log)
	router := http.NewRouter(scanHandler, dispositionHandler, db, log)
	server := http.NewServer(&cfg.Server, router, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
		}
	}()
	log.Info("application started")

	// ==========================================================================
	// Graceful Shutdown
	// ==========================================================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	poller.Stop()
	worker.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return 1
	}

	log.Info("application stopped")
	return 0
}

func initLogger(cfg *config.Config) *logger.Logger {
	if cfg.App.Env == "production" {
		return logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	}
	return logger.NewDevelopment()
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
