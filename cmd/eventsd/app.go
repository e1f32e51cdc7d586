package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/STRATINT/eventcatalog/internal/audit"
	"github.com/STRATINT/eventcatalog/internal/catalog"
	"github.com/STRATINT/eventcatalog/internal/config"
	"github.com/STRATINT/eventcatalog/internal/database"
	"github.com/STRATINT/eventcatalog/internal/enrichment"
	"github.com/STRATINT/eventcatalog/internal/ingestion"
	"github.com/STRATINT/eventcatalog/internal/jobs"
	"github.com/STRATINT/eventcatalog/internal/metrics"
	"github.com/STRATINT/eventcatalog/internal/sources"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	db      *sql.DB
	metrics *metrics.Collector

	events   *database.PostgresEventRepository
	recorder *audit.Recorder
	queue    jobs.Queue
	handler  *jobs.EnrichHandler
	sweeper  *jobs.Sweeper
	registry sources.Registry
	pipeline *ingestion.Pipeline

	deactivator *catalog.Deactivator
	closers     []func() error
}

// openDB connects to the catalog database and applies pending migrations.
func openDB(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sql.DB, error) {
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	dbCfg.MaxConnections = cfg.Database.MaxConnections

	logger.Info("connecting to database")
	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	db, err := openDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, db: db, closers: []func() error{db.Close}}

	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	collector, err := metrics.NewCollector()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	a.metrics = collector

	a.events = database.NewPostgresEventRepository(a.db)
	a.recorder = audit.NewRecorder(database.NewPostgresEnrichmentLogRepository(a.db), a.logger)

	queue, err := a.newQueue()
	if err != nil {
		return err
	}
	a.queue = queue
	if err := collector.RegisterQueueDepth(func() float64 {
		n, err := queue.Len(context.Background())
		if err != nil {
			return 0
		}
		return float64(n)
	}); err != nil {
		return fmt.Errorf("failed to register queue depth: %w", err)
	}

	enrichCfg := a.cfg.Enrichment
	orchestrator := enrichment.NewOrchestrator(
		enrichment.Config{Mode: enrichCfg.Mode, AIEnabled: enrichCfg.AIEnabled},
		a.newAIProvider(),
		enrichment.NewRulesProvider(a.recorder),
		collector,
		a.logger,
	)
	a.handler = jobs.NewEnrichHandler(a.events, orchestrator, enrichCfg.MaxAttempts, a.logger)
	dispatcher := collector.CountEnqueues(queue)
	a.sweeper = jobs.NewSweeper(a.events, dispatcher, enrichCfg.MaxAttempts, a.logger)
	a.deactivator = catalog.NewDeactivator(a.events, a.logger)

	resolver := ingestion.NewDuplicateResolver(a.events, ingestion.DefaultResolverConfig(), a.logger)
	upserter := ingestion.NewUpserter(a.events, resolver, dispatcher, a.logger, ingestion.WithUpsertObserver(collector))

	registry, err := sources.LoadRegistry(a.cfg.Sources.File)
	if err != nil {
		return err
	}
	a.registry = registry
	adapters, err := sources.NewAdapters(registry, upserter, sources.FetcherOptions{}, a.logger)
	if err != nil {
		return err
	}
	a.pipeline = ingestion.NewPipeline(adapters, a.logger, ingestion.DefaultPipelineConfig())
	return nil
}

func (a *app) newQueue() (jobs.Queue, error) {
	if a.cfg.Redis.URL == "" {
		a.logger.Info("using in-process enrichment queue")
		return jobs.NewMemoryQueue(), nil
	}
	opts := jobs.DefaultRedisQueueOptions()
	opts.URL = a.cfg.Redis.URL
	opts.Key = a.cfg.Redis.QueueKey
	q, err := jobs.NewRedisQueue(opts, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, q.Close)
	return q, nil
}

// newAIProvider returns nil when the selected provider has no API key.
func (a *app) newAIProvider() *enrichment.AIProvider {
	cfg := a.cfg.Enrichment
	if cfg.APIKey() == "" {
		a.logger.Warn("no AI API key configured, AI enrichment unavailable", "provider", cfg.Provider)
		return nil
	}

	var client enrichment.LLMClient
	switch cfg.Provider {
	case config.ProviderOpenAI:
		c := enrichment.DefaultOpenAIConfig()
		c.APIKey = cfg.OpenAIAPIKey
		c.Model = cfg.OpenAIModel
		c.Timeout = cfg.Timeout
		client = enrichment.NewOpenAIClient(c, a.logger)
	default:
		c := enrichment.DefaultGeminiConfig()
		c.APIKey = cfg.GeminiAPIKey
		c.Model = cfg.GeminiModel
		c.Timeout = cfg.Timeout
		client = enrichment.NewGeminiClient(c, a.logger)
	}
	if cfg.RateInterval > 0 {
		client = enrichment.NewRateLimitedClient(client, cfg.RateInterval)
	}
	a.logger.Info("AI enrichment configured", "provider", cfg.Provider)
	return enrichment.NewAIProvider(client, a.recorder)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
