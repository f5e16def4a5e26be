package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"healtharchive/internal/apperrors"
	"healtharchive/internal/model"
)

// SnapshotFilter narrows a snapshot query to the bounds the search
// engine's validated Params translate into (spec §4.I inputs). A zero
// value matches every snapshot.
type SnapshotFilter struct {
	SourceID      *uuid.UUID
	IncludeNon2xx bool
	From          *time.Time
	To            *time.Time
	Language      string
}

// filterClause renders f as a sequence of "AND ..." fragments plus
// their positional args, continuing placeholder numbering from next.
func (s *Store) filterClause(f SnapshotFilter, next int) (string, []any) {
	var b strings.Builder
	var args []any

	add := func(cond string, arg any) {
		b.WriteString(" AND ")
		b.WriteString(fmt.Sprintf(cond, s.Placeholder(next)))
		args = append(args, arg)
		next++
	}

	if f.SourceID != nil {
		add("source_id = %s", f.SourceID.String())
	}
	if !f.IncludeNon2xx {
		b.WriteString(" AND (status_code IS NULL OR (status_code >= 200 AND status_code < 300))")
	}
	if f.From != nil {
		add("capture_timestamp >= %s", *f.From)
	}
	if f.To != nil {
		add("capture_timestamp <= %s", *f.To)
	}
	if f.Language != "" {
		add("language = %s", f.Language)
	}
	return b.String(), args
}

// FilteredSnapshots returns snapshots matching f, newest-first, bounded
// by limit (0 means unbounded). Used for the boolean/field-qualified
// mode's candidate set and for the plain "no query text" newest-sort
// path (spec §4.I mode 2 and the boundary behavior for empty q).
func (s *Store) FilteredSnapshots(ctx context.Context, f SnapshotFilter, limit int) ([]model.Snapshot, error) {
	where, args := s.filterClause(f, 1)
	q := snapshotSelectColumns + ` WHERE 1=1` + where + ` ORDER BY capture_timestamp DESC, id DESC`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	q = s.Rebind(q)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.Backend(fmt.Errorf("filtered snapshots: %w", err))
	}
	defer rows.Close()
	return scanSnapshotRows(rows)
}

// FTSSearch runs the full-text tier (spec §4.I mode 3, FTS branch):
// `ts_rank_cd` over the Postgres tsvector column, or an FTS5 MATCH
// query joined back to the base table on SQLite. The backend's rank
// order decides which rows fill limit; the rank value itself is not
// returned, and search.Engine re-scores and re-sorts the rows with its
// own substring match score.
//
// The spec names `to_tsquery(q)` directly; this uses `plainto_tsquery`
// instead, since plaintext-mode queries are unstructured free text, not
// pre-formed tsquery operator syntax, and `to_tsquery` rejects stray
// punctuation that is common in real user queries.
func (s *Store) FTSSearch(ctx context.Context, q string, f SnapshotFilter, limit int) ([]model.Snapshot, error) {
	if s.Dialect == DialectPostgres {
		where, args := s.filterClause(f, 2)
		query := fmt.Sprintf(`%s
			WHERE search_vector @@ plainto_tsquery('simple', $1)%s
			ORDER BY ts_rank_cd(search_vector, plainto_tsquery('simple', $1)) DESC, capture_timestamp DESC, id DESC
			LIMIT %d`, snapshotSelectColumns, where, limit)
		allArgs := append([]any{q}, args...)
		rows, err := s.DB.QueryContext(ctx, query, allArgs...)
		if err != nil {
			return nil, apperrors.Backend(fmt.Errorf("fts search: %w", err))
		}
		defer rows.Close()
		return scanSnapshotRows(rows)
	}

	where, args := s.filterClause(f, 2)
	matchQuery := ftsMatchExpr(q)
	query := fmt.Sprintf(`SELECT
		s.id, s.job_id, s.source_id, s.url, s.normalized_url_group, s.capture_timestamp,
		s.mime_type, s.status_code, s.title, s.snippet, s.content_text, s.language,
		s.content_hash, s.is_archived, s.warc_path, s.warc_record_id, s.created_at
		FROM snapshots_fts f
		JOIN snapshots s ON s.rowid = f.rowid
		WHERE snapshots_fts MATCH ?%s
		ORDER BY rank
		LIMIT %d`, where, limit)
	allArgs := append([]any{matchQuery}, args...)
	rows, err := s.DB.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, apperrors.Backend(fmt.Errorf("fts5 search: %w", err))
	}
	defer rows.Close()
	return scanSnapshotRows(rows)
}

// ftsMatchExpr quotes each token of q so stray FTS5 query-syntax
// characters in free-text user input (hyphens, colons) don't raise a
// MATCH syntax error; FTS5's default column-set behavior ANDs the
// quoted tokens together.
func ftsMatchExpr(q string) string {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return `""`
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

// TrigramSearch runs the last-resort fuzzy tier (spec §4.I mode 3,
// trigram branch), only meaningful when Capabilities.Trigram is true
// (Postgres with pg_trgm).
func (s *Store) TrigramSearch(ctx context.Context, q string, f SnapshotFilter, limit int) ([]model.Snapshot, error) {
	where, args := s.filterClause(f, 2)
	query := fmt.Sprintf(`%s
		WHERE (similarity(title, $1) > 0.2 OR similarity(snippet, $1) > 0.2)%s
		ORDER BY GREATEST(similarity(title, $1), similarity(snippet, $1)) DESC, capture_timestamp DESC, id DESC
		LIMIT %d`, snapshotSelectColumns, where, limit)
	allArgs := append([]any{q}, args...)
	rows, err := s.DB.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, apperrors.Backend(fmt.Errorf("trigram search: %w", err))
	}
	defer rows.Close()
	return scanSnapshotRows(rows)
}

func scanSnapshotRows(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]model.Snapshot, error) {
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
