// Package migrate applies the schema for whichever backend the store
// opened. Postgres gets versioned goose migrations embedded in the
// binary; SQLite gets the embedded schema_sqlite.sql applied directly,
// since the dialects diverge too much to share one migration set
// (store.Capabilities records the resulting tier, not this package).
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	"healtharchive/db/migrations"
	"healtharchive/internal/store"
)

// Run applies all pending migrations/schema to an already-open Store.
func Run(ctx context.Context, s *store.Store) error {
	switch s.Dialect {
	case store.DialectPostgres:
		return runPostgres(ctx, s.DB)
	case store.DialectSQLite:
		return runSQLite(ctx, s.DB)
	default:
		return fmt.Errorf("migrate: unknown dialect %q", s.Dialect)
	}
}

func runPostgres(ctx context.Context, db *sql.DB) error {
	// On fresh docker-compose startup Postgres may not be ready
	// immediately. Short retry loop to avoid failing hard on initial
	// connection refusal.
	deadline := time.Now().Add(30 * time.Second)
	for {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		if time.Now().After(deadline) {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("db not ready: %w", err)
			}
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func runSQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, store.SQLiteSchema()); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}
