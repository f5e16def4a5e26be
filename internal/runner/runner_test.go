package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"healtharchive/internal/config"
	"healtharchive/internal/migrate"
	"healtharchive/internal/model"
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

// writeFakeCrawler writes a tiny shell script that echoes its args and
// exits with the requested code, standing in for the real crawler
// binary in tests.
func writeFakeCrawler(t *testing.T, dir string, exitCode int) string {
	t.Helper()
	path := filepath.Join(dir, "fake-crawler.sh")
	script := fmt.Sprintf("#!/bin/sh\necho \"args: $@\"\nexit %d\n", exitCode)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake crawler: %v", err)
	}
	return path
}

func setupJob(t *testing.T, s *store.Store, exitCode int) model.ArchiveJob {
	t.Helper()
	ctx := context.Background()
	src, err := s.UpsertSource(ctx, "hc", "Health Canada", "https://canada.ca")
	if err != nil {
		t.Fatalf("upsert source: %v", err)
	}

	outputDir := t.TempDir()
	writeFakeCrawler(t, outputDir, exitCode)

	cfg := model.JobConfig{Seeds: []string{"https://canada.ca"}}
	job, err := s.CreateJob(ctx, src.ID, "hc-test", outputDir, cfg)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestRunnerMarksJobCompletedOnExitZero(t *testing.T) {
	s := newTestStore(t)
	job := setupJob(t, s, 0)

	r := New(s, filepath.Join(job.OutputDir, "fake-crawler.sh"), zerolog.Nop())
	if err := r.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, err := s.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != model.JobCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.CrawlerStatus == nil || *got.CrawlerStatus != model.CrawlerSuccess {
		t.Fatalf("expected crawler_status=success, got %v", got.CrawlerStatus)
	}
}

func TestRunnerMarksJobFailedOnNonZeroExit(t *testing.T) {
	s := newTestStore(t)
	job := setupJob(t, s, 7)

	r := New(s, filepath.Join(job.OutputDir, "fake-crawler.sh"), zerolog.Nop())
	if err := r.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, err := s.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != model.JobFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.CrawlerExitCode == nil || *got.CrawlerExitCode != 7 {
		t.Fatalf("expected exit code 7, got %v", got.CrawlerExitCode)
	}
}

func TestRunnerClassifiesMissingOutputDirAsFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	src, err := s.UpsertSource(ctx, "hc", "Health Canada", "https://canada.ca")
	if err != nil {
		t.Fatalf("upsert source: %v", err)
	}

	cfg := model.JobConfig{Seeds: []string{"https://canada.ca"}}
	job, err := s.CreateJob(ctx, src.ID, "hc-missing", "/nonexistent/path/for/test", cfg)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	r := New(s, "irrelevant", zerolog.Nop())
	if err := r.Run(ctx, job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != model.JobFailed {
		t.Fatalf("expected failed for missing output_dir, got %s", got.Status)
	}
}
