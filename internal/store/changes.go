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

// InsertChangeIfAbsent inserts a SnapshotChange keyed by
// (from_snapshot_id, to_snapshot_id), doing nothing if that pair has
// already been computed (spec §4.H idempotence requirement). Returns
// true if a new row was inserted.
func (s *Store) InsertChangeIfAbsent(ctx context.Context, c model.SnapshotChange) (bool, error) {
	existsQ := s.Rebind(`SELECT 1 FROM snapshot_changes WHERE from_snapshot_id = $1 AND to_snapshot_id = $2`)
	var one int
	err := s.DB.QueryRowContext(ctx, existsQ, c.FromSnapshotID.String(), c.ToSnapshotID.String()).Scan(&one)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, apperrors.Backend(fmt.Errorf("check existing change: %w", err))
	}

	id := c.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now().UTC()

	insertQ := s.Rebind(`INSERT INTO snapshot_changes
		(id, from_snapshot_id, to_snapshot_id, normalized_url_group, from_timestamp, to_timestamp,
		 sections_changed, lines_changed, diff_artifact_path, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`)
	_, err = s.DB.ExecContext(ctx, insertQ,
		id.String(), c.FromSnapshotID.String(), c.ToSnapshotID.String(), c.NormalizedURLGroup,
		c.FromTimestamp, c.ToTimestamp, c.SectionsChanged, c.LinesChanged,
		nullableString(c.DiffArtifactPath), now)
	if err != nil {
		return false, apperrors.Backend(fmt.Errorf("insert snapshot change: %w", err))
	}
	return true, nil
}

// ListChangesForGroup returns every computed change for a normalized
// URL group, ordered by from_timestamp ascending, for the timeline and
// compare endpoints.
func (s *Store) ListChangesForGroup(ctx context.Context, group string) ([]model.SnapshotChange, error) {
	q := s.Rebind(`SELECT id, from_snapshot_id, to_snapshot_id, normalized_url_group,
		from_timestamp, to_timestamp, sections_changed, lines_changed, diff_artifact_path, created_at
		FROM snapshot_changes WHERE normalized_url_group = $1 ORDER BY from_timestamp ASC`)
	rows, err := s.DB.QueryContext(ctx, q, group)
	if err != nil {
		return nil, apperrors.Backend(fmt.Errorf("list changes for group %s: %w", group, err))
	}
	defer rows.Close()

	var out []model.SnapshotChange
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListRecentChanges returns the most recently computed changes across
// all groups, for the public /api/changes feed.
func (s *Store) ListRecentChanges(ctx context.Context, limit int) ([]model.SnapshotChange, error) {
	q := s.Rebind(`SELECT id, from_snapshot_id, to_snapshot_id, normalized_url_group,
		from_timestamp, to_timestamp, sections_changed, lines_changed, diff_artifact_path, created_at
		FROM snapshot_changes ORDER BY created_at DESC LIMIT $1`)
	rows, err := s.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, apperrors.Backend(fmt.Errorf("list recent changes: %w", err))
	}
	defer rows.Close()

	var out []model.SnapshotChange
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanChange(row rowScanner) (model.SnapshotChange, error) {
	var (
		idStr, fromStr, toStr string
		diffPath              sql.NullString
		c                     model.SnapshotChange
	)
	err := row.Scan(&idStr, &fromStr, &toStr, &c.NormalizedURLGroup,
		&c.FromTimestamp, &c.ToTimestamp, &c.SectionsChanged, &c.LinesChanged, &diffPath, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SnapshotChange{}, apperrors.NotFoundf("snapshot change not found")
	}
	if err != nil {
		return model.SnapshotChange{}, apperrors.Backend(fmt.Errorf("scan snapshot change: %w", err))
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.SnapshotChange{}, apperrors.Backend(fmt.Errorf("parse change id: %w", err))
	}
	from, err := uuid.Parse(fromStr)
	if err != nil {
		return model.SnapshotChange{}, apperrors.Backend(fmt.Errorf("parse change from id: %w", err))
	}
	to, err := uuid.Parse(toStr)
	if err != nil {
		return model.SnapshotChange{}, apperrors.Backend(fmt.Errorf("parse change to id: %w", err))
	}
	c.ID = id
	c.FromSnapshotID = from
	c.ToSnapshotID = to
	c.DiffArtifactPath = diffPath.String
	return c, nil
}
