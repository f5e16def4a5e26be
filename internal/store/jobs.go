package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"healtharchive/internal/apperrors"
	"healtharchive/internal/model"
)

// CreateJob inserts a new ArchiveJob in status=queued. queuedAt/createdAt/
// updatedAt are all set to now.
func (s *Store) CreateJob(ctx context.Context, sourceID uuid.UUID, name, outputDir string, cfg model.JobConfig) (model.ArchiveJob, error) {
	seeds, err := json.Marshal(cfg.Seeds)
	if err != nil {
		return model.ArchiveJob{}, apperrors.Backend(fmt.Errorf("marshal seeds: %w", err))
	}
	toolOpts, err := json.Marshal(cfg.ToolOptions)
	if err != nil {
		return model.ArchiveJob{}, apperrors.Backend(fmt.Errorf("marshal tool_options: %w", err))
	}
	passthrough, err := json.Marshal(cfg.PassthroughArgs)
	if err != nil {
		return model.ArchiveJob{}, apperrors.Backend(fmt.Errorf("marshal passthrough_args: %w", err))
	}

	now := time.Now().UTC()
	id := uuid.New()

	q := s.Rebind(`INSERT INTO archive_jobs
		(id, source_id, name, output_dir, status, queued_at, created_at, updated_at, seeds, tool_options, passthrough_args)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
	_, err = s.DB.ExecContext(ctx, q,
		id.String(), sourceID.String(), name, outputDir, string(model.JobQueued),
		now, now, now, string(seeds), string(toolOpts), string(passthrough))
	if err != nil {
		return model.ArchiveJob{}, apperrors.Backend(fmt.Errorf("insert archive_job: %w", err))
	}

	return model.ArchiveJob{
		ID: id, SourceID: sourceID, Name: name, OutputDir: outputDir,
		Status: model.JobQueued, QueuedAt: now, CreatedAt: now, UpdatedAt: now,
		Config: cfg, CleanupStatus: model.CleanupNone,
	}, nil
}

// GetJob loads an ArchiveJob by id, or a NotFound error.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (model.ArchiveJob, error) {
	q := s.Rebind(jobSelectColumns + ` WHERE id = $1`)
	row := s.DB.QueryRowContext(ctx, q, id.String())
	return scanJob(row)
}

// SelectNextEligibleJob picks the job with the smallest queued_at (ties
// broken by created_at) among those in {queued, retryable} whose most
// recent infra_error status update (if any) is older than cooldown.
// Returns apperrors.NotFound if nothing is eligible.
func (s *Store) SelectNextEligibleJob(ctx context.Context, cooldown time.Duration) (model.ArchiveJob, error) {
	cutoff := time.Now().UTC().Add(-cooldown)
	q := s.Rebind(jobSelectColumns + `
		WHERE status IN ('queued', 'retryable')
		AND (crawler_status IS NULL OR crawler_status != 'infra_error' OR crawler_status_at IS NULL OR crawler_status_at < $1)
		ORDER BY queued_at ASC, created_at ASC
		LIMIT 1`)
	row := s.DB.QueryRowContext(ctx, q, cutoff)
	return scanJob(row)
}

// TransitionToRunning asserts status ∈ {queued, retryable} and non-empty
// seeds, then sets status=running, started_at=now, inside one
// transaction with a row lock on Postgres (SELECT ... FOR UPDATE;
// SQLite's whole-database write lock serves the same role there).
func (s *Store) TransitionToRunning(ctx context.Context, id uuid.UUID) (model.ArchiveJob, error) {
	var job model.ArchiveJob
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		selectQ := s.Rebind(jobSelectColumns + ` WHERE id = $1`)
		if s.Dialect == DialectPostgres {
			selectQ += " FOR UPDATE"
		}
		row := tx.QueryRowContext(ctx, selectQ, id.String())
		j, err := scanJob(row)
		if err != nil {
			return err
		}

		if j.Status != model.JobQueued && j.Status != model.JobRetryable {
			return apperrors.Validationf("job %s is not eligible to run (status=%s)", id, j.Status)
		}
		if len(j.Config.Seeds) == 0 {
			return apperrors.Validationf("job %s has no seeds configured", id)
		}

		now := time.Now().UTC()
		updateQ := s.Rebind(`UPDATE archive_jobs SET status = $1, started_at = $2, updated_at = $3 WHERE id = $4`)
		if _, err := tx.ExecContext(ctx, updateQ, string(model.JobRunning), now, now, id.String()); err != nil {
			return apperrors.Backend(fmt.Errorf("transition job %s to running: %w", id, err))
		}

		j.Status = model.JobRunning
		j.StartedAt = &now
		j.UpdatedAt = now
		job = j
		return nil
	})
	return job, err
}

// FinalizeCrawl records the runner's outcome for a job and transitions
// its status accordingly. This is the mandatory "finally" path: it runs
// on every crawl outcome, including infra errors, so no job is ever left
// stuck in running.
func (s *Store) FinalizeCrawl(ctx context.Context, id uuid.UUID, exitCode *int, crawlerStatus model.CrawlerStatus, stage string, statsJSON json.RawMessage) error {
	now := time.Now().UTC()

	var newStatus model.JobStatus
	switch crawlerStatus {
	case model.CrawlerSuccess:
		newStatus = model.JobCompleted
	case model.CrawlerFailed:
		newStatus = model.JobFailed
	case model.CrawlerInfraError:
		newStatus = model.JobRetryable
	default:
		return apperrors.Validationf("unknown crawler status %q", crawlerStatus)
	}

	q := s.Rebind(`UPDATE archive_jobs SET
		status = $1, finished_at = $2, updated_at = $3,
		crawler_exit_code = $4, crawler_status = $5, crawler_status_at = $6,
		crawler_stage = $7, last_stats_json = $8
		WHERE id = $9`)
	_, err := s.DB.ExecContext(ctx, q,
		string(newStatus), now, now, exitCode, string(crawlerStatus), now, stage,
		pqtype.NullRawMessage{RawMessage: statsJSON, Valid: len(statsJSON) > 0}, id.String())
	if err != nil {
		return apperrors.Backend(fmt.Errorf("finalize crawl for job %s: %w", id, err))
	}
	return nil
}

// ApplyRetryPolicy reloads the job and, per spec §4.D step 4: if
// crawler_status == failed and retry_count < maxRetries, sets
// status=retryable and increments retry_count. If crawler_status ==
// infra_error, the job is already left as retryable by FinalizeCrawl and
// retry_count is untouched (infra errors never consume retry budget).
func (s *Store) ApplyRetryPolicy(ctx context.Context, id uuid.UUID, maxRetries int) (model.ArchiveJob, error) {
	var job model.ArchiveJob
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		selectQ := s.Rebind(jobSelectColumns + ` WHERE id = $1`)
		if s.Dialect == DialectPostgres {
			selectQ += " FOR UPDATE"
		}
		row := tx.QueryRowContext(ctx, selectQ, id.String())
		j, err := scanJob(row)
		if err != nil {
			return err
		}

		if j.CrawlerStatus == nil || *j.CrawlerStatus != model.CrawlerFailed {
			job = j
			return nil
		}
		if j.RetryCount >= maxRetries {
			job = j
			return nil
		}

		now := time.Now().UTC()
		updateQ := s.Rebind(`UPDATE archive_jobs SET status = $1, retry_count = retry_count + 1, updated_at = $2 WHERE id = $3`)
		if _, err := tx.ExecContext(ctx, updateQ, string(model.JobRetryable), now, id.String()); err != nil {
			return apperrors.Backend(fmt.Errorf("apply retry policy for job %s: %w", id, err))
		}
		j.Status = model.JobRetryable
		j.RetryCount++
		j.UpdatedAt = now
		job = j
		return nil
	})
	return job, err
}

// SetIndexingStatus transitions a job to indexing with
// indexed_page_count reset to 0 (spec §4.G step 5), after first
// recording the discovered warc_file_count.
func (s *Store) SetIndexingStatus(ctx context.Context, id uuid.UUID, warcFileCount int) error {
	now := time.Now().UTC()
	q := s.Rebind(`UPDATE archive_jobs SET status = $1, warc_file_count = $2, indexed_page_count = 0, updated_at = $3 WHERE id = $4`)
	_, err := s.DB.ExecContext(ctx, q, string(model.JobIndexing), warcFileCount, now, id.String())
	if err != nil {
		return apperrors.Backend(fmt.Errorf("set job %s indexing: %w", id, err))
	}
	return nil
}

// SetIndexFailed transitions a job to index_failed (no WARCs discovered,
// or an unexpected exception during indexing per spec §4.G steps 3/7).
func (s *Store) SetIndexFailed(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	q := s.Rebind(`UPDATE archive_jobs SET status = $1, updated_at = $2 WHERE id = $3`)
	_, err := s.DB.ExecContext(ctx, q, string(model.JobIndexFailed), now, id.String())
	if err != nil {
		return apperrors.Backend(fmt.Errorf("set job %s index_failed: %w", id, err))
	}
	return nil
}

// CompleteIndexing atomically sets indexed_page_count and transitions
// the job to indexed (spec §5 ordering guarantee: this transition is
// atomic with setting the count).
func (s *Store) CompleteIndexing(ctx context.Context, id uuid.UUID, indexedPageCount int) error {
	now := time.Now().UTC()
	q := s.Rebind(`UPDATE archive_jobs SET status = $1, indexed_page_count = $2, updated_at = $3 WHERE id = $4`)
	_, err := s.DB.ExecContext(ctx, q, string(model.JobIndexed), indexedPageCount, now, id.String())
	if err != nil {
		return apperrors.Backend(fmt.Errorf("complete indexing for job %s: %w", id, err))
	}
	return nil
}

// RecordCleanup marks a job's temp crawl directories as reclaimed.
func (s *Store) RecordCleanup(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	q := s.Rebind(`UPDATE archive_jobs SET cleanup_status = $1, cleaned_at = $2, updated_at = $3 WHERE id = $4`)
	_, err := s.DB.ExecContext(ctx, q, string(model.CleanupCleaned), now, now, id.String())
	if err != nil {
		return apperrors.Backend(fmt.Errorf("record cleanup for job %s: %w", id, err))
	}
	return nil
}

// UpdateCrawlCounts updates the best-effort progress counters a runner
// observes from the crawler's own stats output.
func (s *Store) UpdateCrawlCounts(ctx context.Context, id uuid.UUID, crawled, total, failed int) error {
	now := time.Now().UTC()
	q := s.Rebind(`UPDATE archive_jobs SET pages_crawled = $1, pages_total = $2, pages_failed = $3, updated_at = $4 WHERE id = $5`)
	_, err := s.DB.ExecContext(ctx, q, crawled, total, failed, now, id.String())
	if err != nil {
		return apperrors.Backend(fmt.Errorf("update crawl counts for job %s: %w", id, err))
	}
	return nil
}

// UpdateWARCFileCount records the number of WARC files discovery found
// for a job, independent of any status transition (spec §4.G step 3:
// the count is recorded before the zero-WARCs/index_failed check).
func (s *Store) UpdateWARCFileCount(ctx context.Context, id uuid.UUID, count int) error {
	now := time.Now().UTC()
	q := s.Rebind(`UPDATE archive_jobs SET warc_file_count = $1, updated_at = $2 WHERE id = $3`)
	_, err := s.DB.ExecContext(ctx, q, count, now, id.String())
	if err != nil {
		return apperrors.Backend(fmt.Errorf("update warc file count for job %s: %w", id, err))
	}
	return nil
}

// RecoverStaleJobs marks `running` jobs whose started_at is older than
// threshold as retryable, without incrementing retry_count (spec §4.A,
// §4.J "stale-job reconciliation"; intended for crash recovery, and
// re-run whenever the worker loop starts up).
func (s *Store) RecoverStaleJobs(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	now := time.Now().UTC()
	q := s.Rebind(`UPDATE archive_jobs SET status = $1, updated_at = $2
		WHERE status = $3 AND started_at IS NOT NULL AND started_at < $4`)
	res, err := s.DB.ExecContext(ctx, q, string(model.JobRetryable), now, string(model.JobRunning), cutoff)
	if err != nil {
		return 0, apperrors.Backend(fmt.Errorf("recover stale jobs: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Backend(fmt.Errorf("recover stale jobs: rows affected: %w", err))
	}
	return int(n), nil
}

// ListJobs returns jobs matching the optional source/status filters,
// newest-queued first, capped at limit (spec §6 admin surface,
// limit ≤ 500 enforced by the caller).
func (s *Store) ListJobs(ctx context.Context, sourceID *uuid.UUID, status *model.JobStatus, limit int) ([]model.ArchiveJob, error) {
	query := jobSelectColumns + ` WHERE 1=1`
	var args []any
	n := 1
	if sourceID != nil {
		query += fmt.Sprintf(" AND source_id = $%d", n)
		args = append(args, sourceID.String())
		n++
	}
	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, string(*status))
		n++
	}
	query += fmt.Sprintf(" ORDER BY queued_at DESC LIMIT $%d", n)
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, s.Rebind(query), args...)
	if err != nil {
		return nil, apperrors.Backend(fmt.Errorf("list jobs: %w", err))
	}
	defer rows.Close()

	var out []model.ArchiveJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// StatusCounts returns the number of jobs in each status, for the admin
// status-counts endpoint and for /api/health's jobs summary.
func (s *Store) StatusCounts(ctx context.Context) (map[model.JobStatus]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM archive_jobs GROUP BY status`)
	if err != nil {
		return nil, apperrors.Backend(fmt.Errorf("status counts: %w", err))
	}
	defer rows.Close()

	out := map[model.JobStatus]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperrors.Backend(fmt.Errorf("scan status count: %w", err))
		}
		out[model.JobStatus(status)] = count
	}
	return out, rows.Err()
}

const jobSelectColumns = `SELECT
	id, source_id, name, output_dir, status,
	queued_at, started_at, finished_at, created_at, updated_at,
	retry_count, seeds, tool_options, passthrough_args,
	crawler_exit_code, crawler_status, crawler_status_at, crawler_stage, last_stats_json,
	combined_log_path, state_file_path,
	warc_file_count, indexed_page_count, pages_crawled, pages_total, pages_failed,
	cleanup_status, cleaned_at
	FROM archive_jobs`

func scanJob(row rowScanner) (model.ArchiveJob, error) {
	var (
		idStr, sourceIDStr, status                                  string
		startedAt, finishedAt, crawlerStatusAt, cleanedAt           sql.NullTime
		seeds, toolOpts, passthrough                                string
		crawlerExitCode                                             sql.NullInt64
		crawlerStatus                                               sql.NullString
		crawlerStage                                                sql.NullString
		lastStatsJSON                                               pqtype.NullRawMessage
		combinedLogPath, stateFilePath                               sql.NullString
		cleanupStatus                                               string
		j                                                           model.ArchiveJob
	)

	err := row.Scan(
		&idStr, &sourceIDStr, &j.Name, &j.OutputDir, &status,
		&j.QueuedAt, &startedAt, &finishedAt, &j.CreatedAt, &j.UpdatedAt,
		&j.RetryCount, &seeds, &toolOpts, &passthrough,
		&crawlerExitCode, &crawlerStatus, &crawlerStatusAt, &crawlerStage, &lastStatsJSON,
		&combinedLogPath, &stateFilePath,
		&j.WARCFileCount, &j.IndexedPageCount, &j.PagesCrawled, &j.PagesTotal, &j.PagesFailed,
		&cleanupStatus, &cleanedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ArchiveJob{}, apperrors.NotFoundf("archive job not found")
	}
	if err != nil {
		return model.ArchiveJob{}, apperrors.Backend(fmt.Errorf("scan archive_job: %w", err))
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.ArchiveJob{}, apperrors.Backend(fmt.Errorf("parse job id: %w", err))
	}
	sourceID, err := uuid.Parse(sourceIDStr)
	if err != nil {
		return model.ArchiveJob{}, apperrors.Backend(fmt.Errorf("parse job source id: %w", err))
	}
	j.ID = id
	j.SourceID = sourceID
	j.Status = model.JobStatus(status)
	j.CleanupStatus = model.CleanupStatus(cleanupStatus)

	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		j.FinishedAt = &t
	}
	if crawlerStatusAt.Valid {
		t := crawlerStatusAt.Time
		j.CrawlerStatusAt = &t
	}
	if cleanedAt.Valid {
		t := cleanedAt.Time
		j.CleanedAt = &t
	}
	if crawlerExitCode.Valid {
		v := int(crawlerExitCode.Int64)
		j.CrawlerExitCode = &v
	}
	if crawlerStatus.Valid {
		v := model.CrawlerStatus(crawlerStatus.String)
		j.CrawlerStatus = &v
	}
	j.CrawlerStage = crawlerStage.String
	if lastStatsJSON.Valid {
		j.LastStatsJSON = lastStatsJSON.RawMessage
	}
	j.CombinedLogPath = combinedLogPath.String
	j.StateFilePath = stateFilePath.String

	if err := json.Unmarshal([]byte(seeds), &j.Config.Seeds); err != nil {
		return model.ArchiveJob{}, apperrors.Backend(fmt.Errorf("unmarshal seeds: %w", err))
	}
	if err := json.Unmarshal([]byte(toolOpts), &j.Config.ToolOptions); err != nil {
		return model.ArchiveJob{}, apperrors.Backend(fmt.Errorf("unmarshal tool_options: %w", err))
	}
	if err := json.Unmarshal([]byte(passthrough), &j.Config.PassthroughArgs); err != nil {
		return model.ArchiveJob{}, apperrors.Backend(fmt.Errorf("unmarshal passthrough_args: %w", err))
	}

	return j, nil
}
