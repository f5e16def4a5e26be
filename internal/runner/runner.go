// Package runner translates a queued ArchiveJob into an external
// crawler subprocess invocation, streams its output, and atomically
// finalizes the job's lifecycle state on every return path (spec
// §4.C).
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"healtharchive/internal/apperrors"
	"healtharchive/internal/model"
	"healtharchive/internal/safety"
	"healtharchive/internal/store"
)

// Runner launches the crawler binary for a job and finalizes its
// result in the store.
type Runner struct {
	Store  *store.Store
	Binary string
	Logger zerolog.Logger
}

// New builds a Runner bound to store s, invoking binary as the crawler
// executable.
func New(s *store.Store, binary string, logger zerolog.Logger) *Runner {
	return &Runner{Store: s, Binary: binary, Logger: logger}
}

// Run executes jobID end to end: transition to running, launch the
// crawler, classify its outcome, and finalize. It never returns an
// error for a crawl that merely failed (that's recorded as
// crawler_status=failed on the job); it returns an error only for
// failures in the runner's own bookkeeping (e.g. the store is down).
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := r.Store.TransitionToRunning(ctx, jobID)
	if err != nil {
		return fmt.Errorf("transition job %s to running: %w", jobID, err)
	}

	exitCode, crawlerStatus, stage, runErr := r.execute(ctx, job)

	finalizeErr := r.Store.FinalizeCrawl(ctx, job.ID, exitCode, crawlerStatus, stage, nil)
	if finalizeErr != nil {
		return fmt.Errorf("finalize job %s: %w", jobID, finalizeErr)
	}

	if runErr != nil && crawlerStatus != model.CrawlerInfraError {
		// A genuine launch failure that isn't a stale-mount signature
		// (e.g. the crawler binary is missing) still needs to surface
		// to the worker loop's logs even though the job state itself
		// is already finalized as failed.
		r.Logger.Error().Err(runErr).Str("job_id", job.ID.String()).Msg("crawl subprocess failed")
	}

	return nil
}

// execute runs the crawler for job and classifies its outcome. It
// never panics out of the caller: a recovered panic is classified the
// same as a non-zero exit.
func (r *Runner) execute(ctx context.Context, job model.ArchiveJob) (exitCode *int, status model.CrawlerStatus, stage string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			failed := 1
			exitCode = &failed
			status = model.CrawlerFailed
			stage = "panic"
			err = fmt.Errorf("crawler invocation panicked: %v", rec)
		}
	}()

	if statErr := r.checkOutputDir(job.OutputDir); statErr != nil {
		if safety.IsStaleMountError(statErr) {
			return nil, model.CrawlerInfraError, "output_dir_check", statErr
		}
		return intPtr(1), model.CrawlerFailed, "output_dir_check", statErr
	}

	args := buildArgs(job.Name, job.Config.Seeds, job.Config.ToolOptions, job.Config.PassthroughArgs)

	logPath := job.CombinedLogPath
	if logPath == "" {
		logPath = filepath.Join(job.OutputDir, job.Name+".combined.log")
	}
	logFile, openErr := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if openErr != nil {
		if safety.IsStaleMountError(openErr) {
			return nil, model.CrawlerInfraError, "open_log", openErr
		}
		return intPtr(1), model.CrawlerFailed, "open_log", openErr
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Dir = job.OutputDir
	combined := io.MultiWriter(logFile, &prefixWriter{logger: r.Logger, jobID: job.ID.String()})
	cmd.Stdout = combined
	cmd.Stderr = combined

	runErr := cmd.Run()
	if runErr == nil {
		return intPtr(0), model.CrawlerSuccess, "completed", nil
	}

	if safety.IsStaleMountError(runErr) {
		return nil, model.CrawlerInfraError, "subprocess_io", runErr
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		code := exitErr.ExitCode()
		return &code, model.CrawlerFailed, "subprocess_exit", runErr
	}

	// Launch itself failed (binary missing, context canceled, etc.):
	// not a classified exit code, treated as a crawl failure rather
	// than silently dropping the job.
	return intPtr(1), model.CrawlerFailed, "launch", runErr
}

// checkOutputDir requires the job's output_dir exists and is readable
// before launching the crawler (spec §4.G step 2 applies the same
// check at indexing time; the runner applies it before spawning so an
// unreachable mount is caught as early as possible).
func (r *Runner) checkOutputDir(dir string) error {
	if dir == "" {
		return apperrors.Validationf("job has no output_dir configured")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return safety.ClassifyIOError(err)
	}
	if !info.IsDir() {
		return apperrors.Validationf("output_dir %s is not a directory", dir)
	}
	return nil
}

func intPtr(v int) *int { return &v }

// prefixWriter adapts the teed subprocess output into structured log
// lines (teacher's convention of routing crawler chatter through the
// process logger rather than letting it bypass log aggregation).
type prefixWriter struct {
	logger zerolog.Logger
	jobID  string
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.logger.Debug().Str("job_id", w.jobID).Str("stream", "crawler").Msg(string(p))
	return len(p), nil
}
