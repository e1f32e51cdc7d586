package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/STRATINT/eventcatalog/internal/api"
	"github.com/STRATINT/eventcatalog/internal/catalog"
	"github.com/STRATINT/eventcatalog/internal/database"
	"github.com/STRATINT/eventcatalog/internal/jobs"
	"github.com/STRATINT/eventcatalog/internal/scheduler"
	"github.com/STRATINT/eventcatalog/internal/server"
	"github.com/STRATINT/eventcatalog/internal/sources"
)

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, enrichment workers and catalog API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		pool := jobs.NewWorkerPool(a.queue, a.handler, cfg.Enrichment.Workers, logger)
		pool.Start(ctx)

		sched := scheduler.New(logger)
		if err := sched.Register(scheduler.Plan{
			Registry:    a.registry,
			Runner:      a.pipeline,
			Sweeper:     a.sweeper,
			SweepLimit:  cfg.Enrichment.SweepLimit,
			Deactivator: a.deactivator,
			Grace:       cfg.Sources.GracePeriod,
		}); err != nil {
			return err
		}
		sched.Start(ctx)
		defer sched.Stop()

		handler := api.NewHandler(
			catalog.NewService(a.events),
			a.events,
			a.recorder,
			map[string]api.HealthFunc{
				"database": func(ctx context.Context) error { return database.HealthCheck(ctx, a.db) },
				"queue": func(ctx context.Context) error {
					_, err := a.queue.Len(ctx)
					return err
				},
			},
			logger,
		)
		srv := server.New(cfg.Server, logger, api.NewRouter(handler, a.metrics))

		err = srv.Run(ctx)
		stop()
		pool.Wait()
		return err
	},
}

var scrapeDays int

var scrapeCmd = &cobra.Command{
	Use:   "scrape [source]",
	Short: "Ingest one source, or every enabled source, once",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		targets := a.registry.Enabled()
		if len(args) == 1 {
			src, ok := a.registry.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown source %q", args[0])
			}
			targets = []sources.SourceConfig{src}
		}

		var errs []error
		for _, src := range targets {
			days := src.Days
			if scrapeDays > 0 {
				days = scrapeDays
			}
			n, err := a.pipeline.RunSource(ctx, src.Name, days)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d events written\n", src.Name, n)
		}

		// Enrichment dispatched during the run lands in the in-process queue;
		// process it before exiting so nothing is lost.
		if cfg.Redis.URL == "" {
			if _, err := jobs.Drain(ctx, a.queue, a.handler); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	},
}

var (
	enrichLimit       int
	enrichRetryFailed bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Queue and process enrichment for events missing it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		queued, err := a.sweeper.Sweep(ctx, jobs.SweepOptions{Limit: enrichLimit, RetryFailed: enrichRetryFailed})
		if err != nil {
			return err
		}
		done, err := jobs.Drain(ctx, a.queue, a.handler)
		fmt.Fprintf(cmd.OutOrStdout(), "queued %d, enriched %d\n", queued, done)
		return err
	},
}

var deactivateGraceHours int

var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate events that ended before the grace period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		db, err := openDB(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		grace := cfg.Sources.GracePeriod
		if cmd.Flags().Changed("grace-hours") {
			grace = time.Duration(deactivateGraceHours) * time.Hour
		}
		n, err := catalog.NewDeactivator(database.NewPostgresEventRepository(db), logger).Deactivate(ctx, grace)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deactivated %d events\n", n)
		return nil
	},
}

var migrateDown int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations, or roll back with --down",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbCfg := database.DefaultConfig()
		dbCfg.URL = cfg.Database.URL
		db, err := database.Connect(cmd.Context(), dbCfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if migrateDown > 0 {
			return database.RollbackMigrations(db, migrateDown, logger)
		}
		return database.RunMigrations(db, logger)
	},
}

func init() {
	scrapeCmd.Flags().IntVar(&scrapeDays, "days", 0, "days ahead to ingest (default: per source)")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 15, "maximum events to queue")
	enrichCmd.Flags().BoolVar(&enrichRetryFailed, "retry-failed", false, "retry events whose enrichment failed")
	deactivateCmd.Flags().IntVar(&deactivateGraceHours, "grace-hours", 2, "hours after an event ends before it is deactivated")
	migrateCmd.Flags().IntVar(&migrateDown, "down", 0, "number of migrations to roll back")
}
