package store

import (
	"context"
	"fmt"
	"time"

	"healtharchive/internal/apperrors"
)

// RecordUsageEvent increments today's counter for eventType (e.g.
// "search", "raw_snapshot_view"), used to build the public /api/stats
// aggregate (spec §6, config.UsageMetricsEnabled).
func (s *Store) RecordUsageEvent(ctx context.Context, eventType string, at time.Time) error {
	day := at.UTC().Format("2006-01-02")

	if s.Dialect == DialectPostgres {
		q := s.Rebind(`INSERT INTO usage_daily (day, event_type, count) VALUES ($1, $2, 1)
			ON CONFLICT (day, event_type) DO UPDATE SET count = usage_daily.count + 1`)
		if _, err := s.DB.ExecContext(ctx, q, day, eventType); err != nil {
			return apperrors.Backend(fmt.Errorf("record usage event %s: %w", eventType, err))
		}
		return nil
	}

	q := s.Rebind(`INSERT INTO usage_daily (day, event_type, count) VALUES ($1, $2, 1)
		ON CONFLICT (day, event_type) DO UPDATE SET count = count + 1`)
	if _, err := s.DB.ExecContext(ctx, q, day, eventType); err != nil {
		return apperrors.Backend(fmt.Errorf("record usage event %s: %w", eventType, err))
	}
	return nil
}

// UsageTotals sums event counts per event_type over the trailing
// windowDays (spec USAGE_METRICS_WINDOW_DAYS), for the cacheable
// /api/stats aggregate.
func (s *Store) UsageTotals(ctx context.Context, windowDays int, now time.Time) (map[string]int64, error) {
	since := now.UTC().AddDate(0, 0, -windowDays).Format("2006-01-02")

	q := s.Rebind(`SELECT event_type, SUM(count) FROM usage_daily WHERE day >= $1 GROUP BY event_type`)
	rows, err := s.DB.QueryContext(ctx, q, since)
	if err != nil {
		return nil, apperrors.Backend(fmt.Errorf("usage totals: %w", err))
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var eventType string
		var sum int64
		if err := rows.Scan(&eventType, &sum); err != nil {
			return nil, apperrors.Backend(fmt.Errorf("scan usage total: %w", err))
		}
		out[eventType] = sum
	}
	return out, rows.Err()
}
