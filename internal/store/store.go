// Package store implements the persistence layer (spec §4.A): a
// relational store with two backends (Postgres in production, embedded
// SQLite for dev/test) behind one query surface. Capability tiers (FTS,
// trigram) are resolved once at Open time rather than sniffed from
// driver error strings later, per the Design Notes.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"healtharchive/internal/config"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// SQLiteSchema returns the embedded SQLite schema DDL, applied directly
// by internal/migrate since SQLite has no goose dialect of its own here.
func SQLiteSchema() string {
	return sqliteSchema
}

// Dialect names the SQL backend in use.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Capabilities names the search execution tiers a backend supports, so
// the search engine can branch on declared capability rather than on
// driver sniffing (Design Notes: "multi-dialect SQL").
type Capabilities struct {
	FTS     bool
	Trigram bool
}

// Store wraps a shared *sql.DB plus the resolved dialect/capabilities.
type Store struct {
	DB           *sql.DB
	Dialect      Dialect
	Capabilities Capabilities
}

// Open parses cfg.DatabaseURL and opens the corresponding backend.
// Accepted forms: "postgres://..." / "postgresql://..." for pgx, and
// "sqlite://path" or a bare filesystem path for the embedded backend.
func Open(cfg *config.Config) (*Store, error) {
	dsn := cfg.DatabaseURL

	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		return &Store{DB: db, Dialect: DialectPostgres, Capabilities: Capabilities{FTS: true, Trigram: true}}, nil

	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		return openSQLite(path)

	default:
		// Bare path: treat as embedded SQLite, since that is the
		// capability-reduced backend dev/test is expected to default to.
		return openSQLite(dsn)
	}
}

func openSQLite(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The embedded backend runs single-process; serialize writers to
	// avoid SQLITE_BUSY under the worker + API goroutines.
	db.SetMaxOpenConns(1)
	return &Store{DB: db, Dialect: DialectSQLite, Capabilities: Capabilities{FTS: true, Trigram: false}}, nil
}

// New wraps an already-opened *sql.DB (used by tests that want to
// share one in-memory SQLite handle across Store and raw assertions).
func New(db *sql.DB, dialect Dialect, caps Capabilities) *Store {
	return &Store{DB: db, Dialect: dialect, Capabilities: caps}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Rebind converts a query written with Postgres-style "$1, $2, ..."
// placeholders into the target dialect's placeholder style. All
// hand-written SQL in this codebase is authored against $N and passed
// through Rebind so it reads identically regardless of backend.
func (s *Store) Rebind(query string) string {
	if s.Dialect == DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('?')
		i = j - 1
	}
	return b.String()
}

// Placeholder returns the dialect-correct placeholder for position n
// (1-based), for callers building queries with a variable number of
// arguments (e.g. dynamic WHERE clauses in the search engine).
func (s *Store) Placeholder(n int) string {
	if s.Dialect == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// WithTx runs fn inside a transaction, committing on success and
// rolling back on any error (including a panic, which it re-raises
// after rollback).
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
