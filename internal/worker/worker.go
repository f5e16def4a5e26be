// Package worker implements the single-threaded cooperative crawl loop
// (spec §4.D): selects the next eligible job, runs it, applies retry
// policy, indexes on success, and change-tracks the groups it touched.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"healtharchive/internal/apperrors"
	"healtharchive/internal/changes"
	"healtharchive/internal/indexer"
	"healtharchive/internal/model"
	"healtharchive/internal/runner"
	"healtharchive/internal/safety"
	"healtharchive/internal/store"
)

// Config bundles the tunables the worker loop needs from the process
// configuration, so this package does not import internal/config
// directly (keeping it testable with hand-built values).
type Config struct {
	PollInterval           time.Duration
	MaxRetries             int
	InfraErrorCooldown     time.Duration
	DiskHeadroomMaxPercent float64
	ChangeTrackerBatchCap  int
	ArchiveRoot            string
	StaleJobThreshold      time.Duration
}

// Worker runs the polling loop. Exactly one crawl runs at a time,
// per spec §5 — a deliberate narrowing of the teacher's
// MaxConcurrentJobs knob (recorded in DESIGN.md).
type Worker struct {
	Store   *store.Store
	Runner  *runner.Runner
	Indexer *indexer.Indexer
	Tracker *changes.Tracker
	Cfg     Config
	Logger  zerolog.Logger

	sem chan struct{}
}

// New builds a Worker wired to its collaborators.
func New(s *store.Store, r *runner.Runner, ix *indexer.Indexer, tr *changes.Tracker, cfg Config, logger zerolog.Logger) *Worker {
	return &Worker{
		Store:   s,
		Runner:  r,
		Indexer: ix,
		Tracker: tr,
		Cfg:     cfg,
		Logger:  logger,
		sem:     make(chan struct{}, 1),
	}
}

// Run starts the polling loop and blocks until ctx is canceled. On
// cancellation, the current iteration (including an in-flight crawl
// subprocess) is allowed to finish before Run returns — no mid-crawl
// abort is issued, since the external crawler handles its own
// resumability via checkpointing.
func (w *Worker) Run(ctx context.Context) {
	if n, err := w.Store.RecoverStaleJobs(ctx, w.Cfg.StaleJobThreshold); err != nil {
		w.Logger.Error().Err(err).Msg("failed to recover stale jobs at startup")
	} else if n > 0 {
		w.Logger.Info().Int("count", n).Msg("recovered stale running jobs to retryable")
	}

	ticker := time.NewTicker(w.Cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick runs one iteration of the loop (spec §4.D steps 1-6). It never
// returns an error: every failure is logged and the loop continues at
// the next poll.
func (w *Worker) tick(ctx context.Context) {
	w.sem <- struct{}{}
	defer func() { <-w.sem }()

	ok, err := safety.HasHeadroom(w.Cfg.ArchiveRoot, w.Cfg.DiskHeadroomMaxPercent)
	if err != nil {
		w.Logger.Error().Err(err).Msg("disk headroom check failed")
		return
	}
	if !ok {
		w.Logger.Warn().Float64("max_used_percent", w.Cfg.DiskHeadroomMaxPercent).
			Msg("disk headroom below threshold, skipping this iteration")
		return
	}

	job, err := w.Store.SelectNextEligibleJob(ctx, w.Cfg.InfraErrorCooldown)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			w.Logger.Error().Err(err).Msg("failed to select next eligible job")
		}
		return
	}

	w.runJob(ctx, job)
}

func (w *Worker) runJob(ctx context.Context, job model.ArchiveJob) {
	logger := w.Logger.With().Str("job_id", job.ID.String()).Str("job_name", job.Name).Logger()

	if err := w.Runner.Run(ctx, job.ID); err != nil {
		logger.Error().Err(err).Msg("crawl run failed")
		return
	}

	reloaded, err := w.Store.ApplyRetryPolicy(ctx, job.ID, w.Cfg.MaxRetries)
	if err != nil {
		logger.Error().Err(err).Msg("failed to apply retry policy")
		return
	}

	if reloaded.CrawlerStatus == nil || *reloaded.CrawlerStatus != model.CrawlerSuccess {
		return
	}

	if err := w.Indexer.IndexJob(ctx, job.ID); err != nil {
		logger.Error().Err(err).Msg("indexing failed")
		return
	}

	groups, err := w.Store.GroupsTouchedByJob(ctx, job.ID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list groups touched by job for change tracking")
		return
	}

	if _, err := w.Tracker.TrackGroups(ctx, groups, w.Cfg.ChangeTrackerBatchCap); err != nil {
		logger.Error().Err(err).Msg("change tracking failed")
	}
}
