package changes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"healtharchive/internal/config"
	"healtharchive/internal/migrate"
	"healtharchive/internal/model"
	"healtharchive/internal/store"
)

func newUUID() uuid.UUID { return uuid.New() }

func hashOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

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

func TestTrackGroupIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src, err := s.UpsertSource(ctx, "hc", "Health Canada", "https://canada.ca")
	if err != nil {
		t.Fatalf("upsert source: %v", err)
	}
	job, err := s.CreateJob(ctx, src.ID, "hc-test", t.TempDir(), model.JobConfig{Seeds: []string{"https://canada.ca"}})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	group := "https://canada.ca/en/health.html"
	batch := s.NewSnapshotBatch(ctx)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, text := range []string{"original content here", "updated content now"} {
		snap := model.Snapshot{
			ID:                 newUUID(),
			JobID:              job.ID,
			SourceID:           src.ID,
			URL:                group,
			NormalizedURLGroup: group,
			CaptureTimestamp:   base.AddDate(0, 0, i),
			ContentText:        text,
			ContentHash:        hashOf(text),
		}
		if err := batch.Add(snap); err != nil {
			t.Fatalf("add snapshot: %v", err)
		}
	}
	if err := batch.Flush(); err != nil {
		t.Fatalf("flush batch: %v", err)
	}

	tracker := New(s, "", zerolog.Nop())
	created, err := tracker.TrackGroup(ctx, group)
	if err != nil {
		t.Fatalf("track group: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 change record created, got %d", created)
	}

	createdAgain, err := tracker.TrackGroup(ctx, group)
	if err != nil {
		t.Fatalf("track group second pass: %v", err)
	}
	if createdAgain != 0 {
		t.Fatalf("expected idempotent second pass to create 0 new records, got %d", createdAgain)
	}

	changes, err := s.ListChangesForGroup(ctx, group)
	if err != nil {
		t.Fatalf("list changes: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected exactly 1 persisted change, got %d", len(changes))
	}
}

func TestTrackGroupZeroChangeForEqualContentHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src, err := s.UpsertSource(ctx, "hc", "Health Canada", "https://canada.ca")
	if err != nil {
		t.Fatalf("upsert source: %v", err)
	}
	job, err := s.CreateJob(ctx, src.ID, "hc-test", t.TempDir(), model.JobConfig{Seeds: []string{"https://canada.ca"}})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	group := "https://canada.ca/en/stable.html"
	batch := s.NewSnapshotBatch(ctx)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	text := "content that never changes"
	for i := 0; i < 2; i++ {
		snap := model.Snapshot{
			ID:                 newUUID(),
			JobID:              job.ID,
			SourceID:           src.ID,
			URL:                group,
			NormalizedURLGroup: group,
			CaptureTimestamp:   base.AddDate(0, 0, i),
			ContentText:        text,
			ContentHash:        hashOf(text),
		}
		if err := batch.Add(snap); err != nil {
			t.Fatalf("add snapshot: %v", err)
		}
	}
	if err := batch.Flush(); err != nil {
		t.Fatalf("flush batch: %v", err)
	}

	tracker := New(s, "", zerolog.Nop())
	if _, err := tracker.TrackGroup(ctx, group); err != nil {
		t.Fatalf("track group: %v", err)
	}

	changes, err := s.ListChangesForGroup(ctx, group)
	if err != nil {
		t.Fatalf("list changes: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected 1 change record, got %d", len(changes))
	}
	if changes[0].SectionsChanged != 0 {
		t.Fatalf("expected sections_changed=0 for equal content hash, got %d", changes[0].SectionsChanged)
	}
}
