package store

import (
	"context"
	"testing"
	"time"

	"healtharchive/internal/model"

	"healtharchive/internal/migrate"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := openSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := migrate.Run(context.Background(), s); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return s
}

func TestUpsertSourceCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	src, err := s.UpsertSource(ctx, "hc", "Health Canada", "https://canada.ca/en/health-canada.html")
	if err != nil {
		t.Fatalf("upsert source: %v", err)
	}
	if src.Code != "hc" {
		t.Fatalf("expected code hc, got %s", src.Code)
	}

	updated, err := s.UpsertSource(ctx, "hc", "Health Canada (updated)", "https://canada.ca/en/health-canada.html")
	if err != nil {
		t.Fatalf("upsert source again: %v", err)
	}
	if updated.ID != src.ID {
		t.Fatalf("expected same source id across upserts, got %s and %s", src.ID, updated.ID)
	}
	if updated.Name != "Health Canada (updated)" {
		t.Fatalf("expected updated name, got %s", updated.Name)
	}
}

func TestJobLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	src, err := s.UpsertSource(ctx, "hc", "Health Canada", "https://canada.ca")
	if err != nil {
		t.Fatalf("upsert source: %v", err)
	}

	cfg := model.JobConfig{Seeds: []string{"https://canada.ca"}}
	job, err := s.CreateJob(ctx, src.ID, "hc-20260305", "/archive/hc/job1", cfg)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.Status != model.JobQueued {
		t.Fatalf("expected queued status, got %s", job.Status)
	}

	picked, err := s.SelectNextEligibleJob(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("select next eligible job: %v", err)
	}
	if picked.ID != job.ID {
		t.Fatalf("expected to pick job %s, got %s", job.ID, picked.ID)
	}

	running, err := s.TransitionToRunning(ctx, job.ID)
	if err != nil {
		t.Fatalf("transition to running: %v", err)
	}
	if running.Status != model.JobRunning || running.StartedAt == nil {
		t.Fatalf("expected running status with started_at set, got %+v", running)
	}

	if err := s.FinalizeCrawl(ctx, job.ID, intPtr(0), model.CrawlerSuccess, "done", nil); err != nil {
		t.Fatalf("finalize crawl: %v", err)
	}
	completed, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if completed.Status != model.JobCompleted {
		t.Fatalf("expected completed status, got %s", completed.Status)
	}
}

func TestRetryPolicyDoesNotConsumeBudgetOnInfraError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	src, _ := s.UpsertSource(ctx, "hc", "Health Canada", "https://canada.ca")
	cfg := model.JobConfig{Seeds: []string{"https://canada.ca"}}
	job, err := s.CreateJob(ctx, src.ID, "hc-20260305", "/archive/hc/job1", cfg)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if _, err := s.TransitionToRunning(ctx, job.ID); err != nil {
		t.Fatalf("transition to running: %v", err)
	}

	if err := s.FinalizeCrawl(ctx, job.ID, nil, model.CrawlerInfraError, "launch", nil); err != nil {
		t.Fatalf("finalize crawl: %v", err)
	}

	after, err := s.ApplyRetryPolicy(ctx, job.ID, 3)
	if err != nil {
		t.Fatalf("apply retry policy: %v", err)
	}
	if after.Status != model.JobRetryable {
		t.Fatalf("expected retryable status, got %s", after.Status)
	}
	if after.RetryCount != 0 {
		t.Fatalf("expected infra_error to not consume retry budget, got retry_count=%d", after.RetryCount)
	}
}

func TestRetryPolicyIncrementsOnFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	src, _ := s.UpsertSource(ctx, "hc", "Health Canada", "https://canada.ca")
	cfg := model.JobConfig{Seeds: []string{"https://canada.ca"}}
	job, _ := s.CreateJob(ctx, src.ID, "hc-20260305", "/archive/hc/job1", cfg)
	if _, err := s.TransitionToRunning(ctx, job.ID); err != nil {
		t.Fatalf("transition to running: %v", err)
	}

	if err := s.FinalizeCrawl(ctx, job.ID, intPtr(1), model.CrawlerFailed, "launch", nil); err != nil {
		t.Fatalf("finalize crawl: %v", err)
	}

	after, err := s.ApplyRetryPolicy(ctx, job.ID, 3)
	if err != nil {
		t.Fatalf("apply retry policy: %v", err)
	}
	if after.Status != model.JobRetryable {
		t.Fatalf("expected retryable status, got %s", after.Status)
	}
	if after.RetryCount != 1 {
		t.Fatalf("expected retry_count incremented to 1, got %d", after.RetryCount)
	}
}

func TestRecoverStaleJobs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	src, _ := s.UpsertSource(ctx, "hc", "Health Canada", "https://canada.ca")
	cfg := model.JobConfig{Seeds: []string{"https://canada.ca"}}
	job, _ := s.CreateJob(ctx, src.ID, "hc-20260305", "/archive/hc/job1", cfg)
	if _, err := s.TransitionToRunning(ctx, job.ID); err != nil {
		t.Fatalf("transition to running: %v", err)
	}

	// Backdate started_at so it looks abandoned.
	old := time.Now().UTC().Add(-2 * time.Hour)
	if _, err := s.DB.ExecContext(ctx, s.Rebind(`UPDATE archive_jobs SET started_at = $1 WHERE id = $2`), old, job.ID.String()); err != nil {
		t.Fatalf("backdate started_at: %v", err)
	}

	n, err := s.RecoverStaleJobs(ctx, 45*time.Minute)
	if err != nil {
		t.Fatalf("recover stale jobs: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 job recovered, got %d", n)
	}

	recovered, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if recovered.Status != model.JobRetryable {
		t.Fatalf("expected retryable status after recovery, got %s", recovered.Status)
	}
	if recovered.RetryCount != 0 {
		t.Fatalf("expected recovery to not consume retry budget, got %d", recovered.RetryCount)
	}
}

func TestSnapshotBatchFlushAndIdempotentReindex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	src, _ := s.UpsertSource(ctx, "hc", "Health Canada", "https://canada.ca")
	cfg := model.JobConfig{Seeds: []string{"https://canada.ca"}}
	job, _ := s.CreateJob(ctx, src.ID, "hc-20260305", "/archive/hc/job1", cfg)

	writeOneSnapshot := func() {
		batch := s.NewSnapshotBatch(ctx)
		if err := batch.Add(model.Snapshot{
			JobID: job.ID, SourceID: src.ID,
			URL: "https://canada.ca/en/health.html", NormalizedURLGroup: "canada.ca/en/health.html",
			CaptureTimestamp: time.Now().UTC(), Title: "Health", ContentText: "vaccine info",
		}); err != nil {
			t.Fatalf("add snapshot: %v", err)
		}
		if err := batch.Flush(); err != nil {
			t.Fatalf("flush batch: %v", err)
		}
	}

	writeOneSnapshot()
	count1, err := s.CountSnapshotsForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("count snapshots: %v", err)
	}
	if count1 != 1 {
		t.Fatalf("expected 1 snapshot, got %d", count1)
	}

	// Idempotent reindex: delete then rewrite (spec I3).
	if err := s.DeleteSnapshotsForJob(ctx, job.ID); err != nil {
		t.Fatalf("delete snapshots: %v", err)
	}
	writeOneSnapshot()
	count2, err := s.CountSnapshotsForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("count snapshots: %v", err)
	}
	if count2 != 1 {
		t.Fatalf("expected 1 snapshot after reindex, got %d", count2)
	}
}

func intPtr(v int) *int { return &v }
