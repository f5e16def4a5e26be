package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"healtharchive/internal/apperrors"
	"healtharchive/internal/model"
)

// UpsertPageSignal creates or replaces the inlink_count for a
// normalized URL group (spec §3 PageSignal, used only as a ranking
// tie-break in §4.I).
func (s *Store) UpsertPageSignal(ctx context.Context, group string, inlinkCount int) error {
	now := time.Now().UTC()

	if s.Dialect == DialectPostgres {
		q := s.Rebind(`INSERT INTO page_signals (normalized_url_group, inlink_count, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (normalized_url_group) DO UPDATE SET inlink_count = $2, updated_at = $3`)
		if _, err := s.DB.ExecContext(ctx, q, group, inlinkCount, now); err != nil {
			return apperrors.Backend(fmt.Errorf("upsert page signal %s: %w", group, err))
		}
		return nil
	}

	q := s.Rebind(`INSERT OR REPLACE INTO page_signals (normalized_url_group, inlink_count, updated_at)
		VALUES ($1, $2, $3)`)
	if _, err := s.DB.ExecContext(ctx, q, group, inlinkCount, now); err != nil {
		return apperrors.Backend(fmt.Errorf("upsert page signal %s: %w", group, err))
	}
	return nil
}

// GetPageSignal returns the authority signal for a group, or a zero
// value with InlinkCount 0 if none has been recorded.
func (s *Store) GetPageSignal(ctx context.Context, group string) (model.PageSignal, error) {
	q := s.Rebind(`SELECT normalized_url_group, inlink_count, updated_at FROM page_signals WHERE normalized_url_group = $1`)
	row := s.DB.QueryRowContext(ctx, q, group)

	var sig model.PageSignal
	err := row.Scan(&sig.NormalizedURLGroup, &sig.InlinkCount, &sig.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PageSignal{NormalizedURLGroup: group}, nil
	}
	if err != nil {
		return model.PageSignal{}, apperrors.Backend(fmt.Errorf("get page signal %s: %w", group, err))
	}
	return sig, nil
}

// InlinkCounts returns inlink_count for a batch of groups in one query,
// used by the ranking pass to avoid N+1 lookups per search result page.
func (s *Store) InlinkCounts(ctx context.Context, groups []string) (map[string]int, error) {
	out := make(map[string]int, len(groups))
	if len(groups) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(groups))
	args := make([]any, len(groups))
	for i, g := range groups {
		placeholders[i] = s.Placeholder(i + 1)
		args[i] = g
	}
	q := fmt.Sprintf(`SELECT normalized_url_group, inlink_count FROM page_signals WHERE normalized_url_group IN (%s)`,
		joinPlaceholders(placeholders))

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.Backend(fmt.Errorf("inlink counts: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var g string
		var n int
		if err := rows.Scan(&g, &n); err != nil {
			return nil, apperrors.Backend(fmt.Errorf("scan inlink count: %w", err))
		}
		out[g] = n
	}
	return out, rows.Err()
}

func joinPlaceholders(ps []string) string {
	out := ""
	for i, p := range ps {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
