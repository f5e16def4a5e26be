package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"healtharchive/internal/apperrors"
	"healtharchive/internal/model"
)

// snapshotBatchFlushSize bounds memory on large indexing runs (spec
// §4.A: "bulk insert with periodic flush every 500 rows").
const snapshotBatchFlushSize = 500

// SnapshotBatch buffers Snapshot rows and flushes them in bounded
// groups. Each flush writes its rows with one INSERT statement per row
// inside a single transaction; Postgres and SQLite share this code path.
type SnapshotBatch struct {
	store *Store
	ctx   context.Context
	buf   []model.Snapshot
	total int
}

// NewSnapshotBatch starts a new buffered writer for the given context.
func (s *Store) NewSnapshotBatch(ctx context.Context) *SnapshotBatch {
	return &SnapshotBatch{store: s, ctx: ctx}
}

// Add appends a snapshot to the batch, flushing automatically once the
// buffer reaches snapshotBatchFlushSize.
func (b *SnapshotBatch) Add(snap model.Snapshot) error {
	b.buf = append(b.buf, snap)
	if len(b.buf) >= snapshotBatchFlushSize {
		return b.Flush()
	}
	return nil
}

// Flush writes any buffered rows immediately.
func (b *SnapshotBatch) Flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	if err := b.store.insertSnapshots(b.ctx, b.buf); err != nil {
		return err
	}
	b.total += len(b.buf)
	b.buf = b.buf[:0]
	return nil
}

// Total returns the number of rows written so far (including the
// current unflushed buffer).
func (b *SnapshotBatch) Total() int {
	return b.total + len(b.buf)
}

func (s *Store) insertSnapshots(ctx context.Context, snaps []model.Snapshot) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, snap := range snaps {
			id := snap.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			now := snap.CreatedAt
			if now.IsZero() {
				now = time.Now().UTC()
			}
			q := s.Rebind(`INSERT INTO snapshots
				(id, job_id, source_id, url, normalized_url_group, capture_timestamp,
				 mime_type, status_code, title, snippet, content_text, language,
				 content_hash, is_archived, warc_path, warc_record_id, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`)
			_, err := tx.ExecContext(ctx, q,
				id.String(), snap.JobID.String(), snap.SourceID.String(),
				snap.URL, snap.NormalizedURLGroup, snap.CaptureTimestamp,
				snap.MIMEType, snap.StatusCode, snap.Title, snap.Snippet, snap.ContentText,
				string(snap.Language), snap.ContentHash, string(snap.IsArchived),
				snap.WARCPath, nullableString(snap.WARCRecordID), now)
			if err != nil {
				return apperrors.Backend(fmt.Errorf("insert snapshot %s: %w", snap.URL, err))
			}
		}
		return nil
	})
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// DeleteSnapshotsForJob removes all snapshots for a job (spec I3:
// reindexing first deletes all snapshots for job_id, then inserts the
// new set).
func (s *Store) DeleteSnapshotsForJob(ctx context.Context, jobID uuid.UUID) error {
	q := s.Rebind(`DELETE FROM snapshots WHERE job_id = $1`)
	if _, err := s.DB.ExecContext(ctx, q, jobID.String()); err != nil {
		return apperrors.Backend(fmt.Errorf("delete snapshots for job %s: %w", jobID, err))
	}
	return nil
}

// GetSnapshot loads a snapshot by id, or a NotFound error.
func (s *Store) GetSnapshot(ctx context.Context, id uuid.UUID) (model.Snapshot, error) {
	q := s.Rebind(snapshotSelectColumns + ` WHERE id = $1`)
	row := s.DB.QueryRowContext(ctx, q, id.String())
	return scanSnapshot(row)
}

// ListSnapshotsByGroup returns every snapshot in a normalized URL group,
// ordered by capture_timestamp ascending then id ascending (spec §4.H
// tie-break for same-timestamp captures).
func (s *Store) ListSnapshotsByGroup(ctx context.Context, group string) ([]model.Snapshot, error) {
	q := s.Rebind(snapshotSelectColumns + ` WHERE normalized_url_group = $1 ORDER BY capture_timestamp ASC, id ASC`)
	rows, err := s.DB.QueryContext(ctx, q, group)
	if err != nil {
		return nil, apperrors.Backend(fmt.Errorf("list snapshots for group %s: %w", group, err))
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// ListSnapshotsByJob returns every snapshot a job produced, ordered by
// capture_timestamp ascending, for the admin job-detail endpoint.
func (s *Store) ListSnapshotsByJob(ctx context.Context, jobID uuid.UUID) ([]model.Snapshot, error) {
	q := s.Rebind(snapshotSelectColumns + ` WHERE job_id = $1 ORDER BY capture_timestamp ASC, id ASC`)
	rows, err := s.DB.QueryContext(ctx, q, jobID.String())
	if err != nil {
		return nil, apperrors.Backend(fmt.Errorf("list snapshots for job %s: %w", jobID, err))
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// GroupsTouchedByJob returns the distinct normalized_url_group values
// for a job's snapshots, for the worker loop's post-index change-
// tracking step (spec §4.D step 6).
func (s *Store) GroupsTouchedByJob(ctx context.Context, jobID uuid.UUID) ([]string, error) {
	q := s.Rebind(`SELECT DISTINCT normalized_url_group FROM snapshots WHERE job_id = $1`)
	rows, err := s.DB.QueryContext(ctx, q, jobID.String())
	if err != nil {
		return nil, apperrors.Backend(fmt.Errorf("groups touched by job %s: %w", jobID, err))
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, apperrors.Backend(fmt.Errorf("scan group: %w", err))
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CountSnapshotsForJob returns the number of persisted snapshot rows for
// a job, used to verify the `status==indexed ⇒ indexed_page_count ==
// count(snapshots)` invariant in tests.
func (s *Store) CountSnapshotsForJob(ctx context.Context, jobID uuid.UUID) (int, error) {
	q := s.Rebind(`SELECT COUNT(*) FROM snapshots WHERE job_id = $1`)
	var n int
	if err := s.DB.QueryRowContext(ctx, q, jobID.String()).Scan(&n); err != nil {
		return 0, apperrors.Backend(fmt.Errorf("count snapshots for job %s: %w", jobID, err))
	}
	return n, nil
}

const snapshotSelectColumns = `SELECT
	id, job_id, source_id, url, normalized_url_group, capture_timestamp,
	mime_type, status_code, title, snippet, content_text, language,
	content_hash, is_archived, warc_path, warc_record_id, created_at
	FROM snapshots`

func scanSnapshot(row rowScanner) (model.Snapshot, error) {
	var (
		idStr, jobIDStr, sourceIDStr string
		mimeType, title, snippet    sql.NullString
		contentText, language       sql.NullString
		contentHash, warcRecordID   sql.NullString
		isArchived                  string
		statusCode                  sql.NullInt64
		snap                        model.Snapshot
	)

	err := row.Scan(
		&idStr, &jobIDStr, &sourceIDStr, &snap.URL, &snap.NormalizedURLGroup, &snap.CaptureTimestamp,
		&mimeType, &statusCode, &title, &snippet, &contentText, &language,
		&contentHash, &isArchived, &snap.WARCPath, &warcRecordID, &snap.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Snapshot{}, apperrors.NotFoundf("snapshot not found")
	}
	if err != nil {
		return model.Snapshot{}, apperrors.Backend(fmt.Errorf("scan snapshot: %w", err))
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.Snapshot{}, apperrors.Backend(fmt.Errorf("parse snapshot id: %w", err))
	}
	jobID, err := uuid.Parse(jobIDStr)
	if err != nil {
		return model.Snapshot{}, apperrors.Backend(fmt.Errorf("parse snapshot job id: %w", err))
	}
	sourceID, err := uuid.Parse(sourceIDStr)
	if err != nil {
		return model.Snapshot{}, apperrors.Backend(fmt.Errorf("parse snapshot source id: %w", err))
	}
	snap.ID = id
	snap.JobID = jobID
	snap.SourceID = sourceID
	snap.MIMEType = mimeType.String
	snap.Title = title.String
	snap.Snippet = snippet.String
	snap.ContentText = contentText.String
	snap.Language = model.Language(language.String)
	snap.ContentHash = contentHash.String
	snap.IsArchived = model.TriState(isArchived)
	snap.WARCRecordID = warcRecordID.String
	if statusCode.Valid {
		v := int(statusCode.Int64)
		snap.StatusCode = &v
	}

	return snap, nil
}
