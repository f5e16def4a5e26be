package usage

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"healtharchive/internal/config"
	"healtharchive/internal/migrate"
	"healtharchive/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(&config.Config{DatabaseURL: "sqlite://:memory:"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := migrate.Run(context.Background(), s); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return s
}

func TestRecordEventIsNoOpWhenDisabled(t *testing.T) {
	s := newTestStore(t)
	tr := New(s, nil, false, 30, zerolog.Nop())
	tr.RecordEvent("search")

	totals, err := tr.Store.UsageTotals(context.Background(), 30, time.Now())
	if err != nil {
		t.Fatalf("usage totals: %v", err)
	}
	if len(totals) != 0 {
		t.Fatalf("expected no events recorded while disabled, got %v", totals)
	}
}

func TestStatsFallsBackToStoreWithoutRedis(t *testing.T) {
	s := newTestStore(t)
	tr := New(s, nil, true, 30, zerolog.Nop())

	if err := s.RecordUsageEvent(context.Background(), "search", time.Now()); err != nil {
		t.Fatalf("seed usage event: %v", err)
	}
	if err := s.RecordUsageEvent(context.Background(), "search", time.Now()); err != nil {
		t.Fatalf("seed usage event: %v", err)
	}

	totals, err := tr.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if totals["search"] != 2 {
		t.Fatalf("expected search=2, got %v", totals)
	}
}

func TestStatsWindowExcludesOldEvents(t *testing.T) {
	s := newTestStore(t)
	tr := New(s, nil, true, 7, zerolog.Nop())

	old := time.Now().AddDate(0, 0, -30)
	if err := s.RecordUsageEvent(context.Background(), "raw_snapshot_view", old); err != nil {
		t.Fatalf("seed old usage event: %v", err)
	}

	totals, err := tr.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if _, ok := totals["raw_snapshot_view"]; ok {
		t.Fatalf("expected old event to fall outside the window, got %v", totals)
	}
}

func TestNewRedisClientNilWhenURLEmpty(t *testing.T) {
	if c := NewRedisClient(""); c != nil {
		t.Fatalf("expected nil client for empty URL, got %v", c)
	}
}
