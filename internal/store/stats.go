package store

import (
	"context"
	"database/sql"
	"fmt"

	"healtharchive/internal/apperrors"
)

// SourceSummary is a Source's snapshot count and capture date range,
// for the /api/sources listing.
type SourceSummary struct {
	SourceCode   string
	SnapshotCount int
	EarliestCapture sql.NullTime
	LatestCapture   sql.NullTime
}

// SourceSummaries returns per-source snapshot counts and capture
// ranges, joined against the sources table so sources with zero
// snapshots still appear.
func (s *Store) SourceSummaries(ctx context.Context) ([]SourceSummary, error) {
	q := `SELECT src.code, COUNT(sn.id), MIN(sn.capture_timestamp), MAX(sn.capture_timestamp)
		FROM sources src
		LEFT JOIN snapshots sn ON sn.source_id = src.id
		GROUP BY src.code
		ORDER BY src.code`
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, apperrors.Backend(fmt.Errorf("source summaries: %w", err))
	}
	defer rows.Close()

	var out []SourceSummary
	for rows.Next() {
		var sm SourceSummary
		if err := rows.Scan(&sm.SourceCode, &sm.SnapshotCount, &sm.EarliestCapture, &sm.LatestCapture); err != nil {
			return nil, apperrors.Backend(fmt.Errorf("scan source summary: %w", err))
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// TotalSnapshots returns the total snapshot row count, for /api/health
// and /api/stats.
func (s *Store) TotalSnapshots(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, apperrors.Backend(fmt.Errorf("total snapshots: %w", err))
	}
	return n, nil
}

// Ping verifies the underlying connection is reachable, for
// /api/health's db check.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return apperrors.StorageUnavailable(err)
	}
	return nil
}
