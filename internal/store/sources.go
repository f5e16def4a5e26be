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

// UpsertSource creates a source row for code if none exists, or updates
// name/baseURL/enabled on the existing one. Used by the registry-driven
// job creation path so every recognized source code has a backing row.
func (s *Store) UpsertSource(ctx context.Context, code, name, baseURL string) (model.Source, error) {
	now := time.Now().UTC()

	existing, err := s.GetSourceByCode(ctx, code)
	if err == nil {
		existing.Name = name
		existing.BaseURL = baseURL
		existing.UpdatedAt = now
		q := s.Rebind(`UPDATE sources SET name = $1, base_url = $2, updated_at = $3 WHERE id = $4`)
		if _, err := s.DB.ExecContext(ctx, q, name, baseURL, now, existing.ID.String()); err != nil {
			return model.Source{}, apperrors.Backend(fmt.Errorf("update source %s: %w", code, err))
		}
		return existing, nil
	}
	if !apperrors.IsNotFound(err) {
		return model.Source{}, err
	}

	id := uuid.New()
	q := s.Rebind(`INSERT INTO sources (id, code, name, base_url, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if _, err := s.DB.ExecContext(ctx, q, id.String(), code, name, baseURL, true, now, now); err != nil {
		return model.Source{}, apperrors.Backend(fmt.Errorf("insert source %s: %w", code, err))
	}

	return model.Source{
		ID: id, Code: code, Name: name, BaseURL: baseURL,
		Enabled: true, CreatedAt: now, UpdatedAt: now,
	}, nil
}

// GetSourceByCode returns the source row for code, or a NotFound error.
func (s *Store) GetSourceByCode(ctx context.Context, code string) (model.Source, error) {
	q := s.Rebind(`SELECT id, code, name, base_url, enabled, created_at, updated_at
		FROM sources WHERE code = $1`)
	row := s.DB.QueryRowContext(ctx, q, code)
	return scanSource(row)
}

// GetSource returns the source row by id, or a NotFound error.
func (s *Store) GetSource(ctx context.Context, id uuid.UUID) (model.Source, error) {
	q := s.Rebind(`SELECT id, code, name, base_url, enabled, created_at, updated_at
		FROM sources WHERE id = $1`)
	row := s.DB.QueryRowContext(ctx, q, id.String())
	return scanSource(row)
}

// ListSources returns every known source, ordered by code.
func (s *Store) ListSources(ctx context.Context) ([]model.Source, error) {
	q := `SELECT id, code, name, base_url, enabled, created_at, updated_at FROM sources ORDER BY code`
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, apperrors.Backend(fmt.Errorf("list sources: %w", err))
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		src, err := scanSourceRows(rows)
		if err != nil {
			return nil, apperrors.Backend(fmt.Errorf("scan source: %w", err))
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (model.Source, error) {
	var idStr string
	var src model.Source
	err := row.Scan(&idStr, &src.Code, &src.Name, &src.BaseURL, &src.Enabled, &src.CreatedAt, &src.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Source{}, apperrors.NotFoundf("source not found")
	}
	if err != nil {
		return model.Source{}, apperrors.Backend(fmt.Errorf("scan source: %w", err))
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.Source{}, apperrors.Backend(fmt.Errorf("parse source id: %w", err))
	}
	src.ID = id
	return src, nil
}

func scanSourceRows(rows *sql.Rows) (model.Source, error) {
	return scanSource(rows)
}
