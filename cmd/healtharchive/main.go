// Command healtharchive runs the worker loop and the HTTP API in a
// single process (spec §4's "single worker process" scheduling model).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"healtharchive/internal/changes"
	"healtharchive/internal/config"
	"healtharchive/internal/httpapi"
	"healtharchive/internal/indexer"
	"healtharchive/internal/migrate"
	"healtharchive/internal/registry"
	"healtharchive/internal/runner"
	"healtharchive/internal/search"
	"healtharchive/internal/store"
	"healtharchive/internal/usage"
	"healtharchive/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("invalid config: %v", err)
	}

	logger := newLogger(cfg.LogLevel)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	if err := migrate.Run(context.Background(), st); err != nil {
		logger.Fatal().Err(err).Msg("apply schema")
	}

	reg, err := registry.Load(cfg.JobRegistryPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load job registry")
	}

	// `healtharchive create-job <code>` enqueues a single job and exits,
	// for an external systemd timer to invoke on a schedule (spec's
	// "systemd timers" scheduling collaborator) rather than this
	// process self-scheduling crawls.
	if len(os.Args) > 2 && os.Args[1] == "create-job" {
		code := os.Args[2]
		job, err := registry.CreateJobForSource(context.Background(), st, reg, cfg.ArchiveRoot, code, registry.Overrides{})
		if err != nil {
			logger.Fatal().Err(err).Str("source", code).Msg("create job")
		}
		logger.Info().Str("job_id", job.ID.String()).Str("job_name", job.Name).Msg("job queued")
		return
	}

	searchEngine := search.New(st, cfg.SearchRankingVersion)
	usageTracker := usage.New(st, usage.NewRedisClient(cfg.RedisURL), cfg.UsageMetricsEnabled, cfg.UsageMetricsWindowDays, logger)

	jobRunner := runner.New(st, cfg.CrawlerBinary, logger)
	ix := indexer.New(st, logger)
	tracker := changes.New(st, cfg.ArchiveRoot, logger)

	w := worker.New(st, jobRunner, ix, tracker, worker.Config{
		PollInterval:           cfg.WorkerPollInterval,
		MaxRetries:             cfg.MaxRetries,
		InfraErrorCooldown:     cfg.InfraErrorCooldown,
		DiskHeadroomMaxPercent: cfg.DiskHeadroomMaxUsedPercent,
		ChangeTrackerBatchCap:  cfg.ChangeTrackerBatchCap,
		ArchiveRoot:            cfg.ArchiveRoot,
		StaleJobThreshold:      cfg.StaleJobThreshold,
	}, logger)

	server := httpapi.NewServer(cfg, st, searchEngine, usageTracker, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go w.Run(ctx)

	go func() {
		logger.Info().Str("addr", cfg.ServerHost).Int("port", cfg.ServerPort).Msg("starting http server")
		if err := server.Listen(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}
}

func newLogger(level string) zerolog.Logger {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		l = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(l)
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

func fatalf(format string, args ...any) {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger.Fatal().Msgf(format, args...)
}
