package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"healtharchive/internal/changes"
	"healtharchive/internal/config"
	"healtharchive/internal/indexer"
	"healtharchive/internal/migrate"
	"healtharchive/internal/model"
	"healtharchive/internal/runner"
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

func writeFakeCrawler(t *testing.T, dir string, exitCode int) string {
	t.Helper()
	path := filepath.Join(dir, "fake-crawler.sh")
	script := fmt.Sprintf("#!/bin/sh\necho \"args: $@\"\nexit %d\n", exitCode)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake crawler: %v", err)
	}
	return path
}

func newWorker(t *testing.T, s *store.Store, crawlerPath string) *Worker {
	t.Helper()
	archiveRoot := t.TempDir()
	r := runner.New(s, crawlerPath, zerolog.Nop())
	ix := indexer.New(s, zerolog.Nop())
	tr := changes.New(s, "", zerolog.Nop())
	cfg := Config{
		PollInterval:           time.Millisecond,
		MaxRetries:             3,
		InfraErrorCooldown:     time.Minute,
		DiskHeadroomMaxPercent: 99.9,
		ChangeTrackerBatchCap:  100,
		ArchiveRoot:            archiveRoot,
		StaleJobThreshold:      45 * time.Minute,
	}
	return New(s, r, ix, tr, cfg, zerolog.Nop())
}

func TestTickSkipsWhenNoEligibleJob(t *testing.T) {
	s := newTestStore(t)
	w := newWorker(t, s, "irrelevant")

	// Should be a no-op: no jobs exist at all.
	w.tick(context.Background())
}

func TestTickRunsEligibleJobToCompletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src, err := s.UpsertSource(ctx, "hc", "Health Canada", "https://canada.ca")
	if err != nil {
		t.Fatalf("upsert source: %v", err)
	}

	outputDir := t.TempDir()
	crawlerPath := writeFakeCrawler(t, outputDir, 0)

	cfg := model.JobConfig{Seeds: []string{"https://canada.ca"}}
	job, err := s.CreateJob(ctx, src.ID, "hc-test", outputDir, cfg)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	w := newWorker(t, s, crawlerPath)
	w.tick(ctx)

	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	// No WARC files were produced by the fake crawler, so indexing
	// must observe zero WARCs and mark the job index_failed rather
	// than indexed — but the crawl itself should have completed.
	if got.CrawlerStatus == nil || *got.CrawlerStatus != model.CrawlerSuccess {
		t.Fatalf("expected crawler_status=success, got %v", got.CrawlerStatus)
	}
	if got.Status != model.JobIndexFailed {
		t.Fatalf("expected index_failed after a zero-WARC crawl, got %s", got.Status)
	}
}

func TestTickHonorsDiskHeadroomGate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src, err := s.UpsertSource(ctx, "hc", "Health Canada", "https://canada.ca")
	if err != nil {
		t.Fatalf("upsert source: %v", err)
	}
	outputDir := t.TempDir()
	crawlerPath := writeFakeCrawler(t, outputDir, 0)
	cfg := model.JobConfig{Seeds: []string{"https://canada.ca"}}
	job, err := s.CreateJob(ctx, src.ID, "hc-test", outputDir, cfg)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	w := newWorker(t, s, crawlerPath)
	w.Cfg.DiskHeadroomMaxPercent = 0 // guaranteed-exceeded threshold
	w.tick(ctx)

	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != model.JobQueued {
		t.Fatalf("expected job to remain queued when headroom gate trips, got %s", got.Status)
	}
}
