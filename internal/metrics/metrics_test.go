package metrics

import (
	"strings"
	"testing"
)

func TestRecordRequestAndExport(t *testing.T) {
	RecordRequest("GET", "/api/search", 200, 42)

	out := Export()
	if !strings.Contains(out, "healtharchive_http_requests_total{method=\"GET\",path=\"/api/search\",status=\"200\"}") {
		t.Fatalf("expected HTTP request metric for GET /api/search in export, got:\n%s", out)
	}
	if !strings.Contains(out, "healtharchive_http_request_duration_ms_sum") || !strings.Contains(out, "healtharchive_http_request_duration_ms_count") {
		t.Fatalf("expected latency metrics headers in export, got:\n%s", out)
	}
}

func TestJobStatusGaugeReplacesPreviousSnapshot(t *testing.T) {
	SetJobStatusCounts(map[string]int64{"queued": 3, "running": 1})
	out := Export()
	if !strings.Contains(out, `healtharchive_jobs{status="queued"} 3`) {
		t.Fatalf("expected queued gauge, got:\n%s", out)
	}
	if !strings.Contains(out, `healtharchive_jobs{status="running"} 1`) {
		t.Fatalf("expected running gauge, got:\n%s", out)
	}

	SetJobStatusCounts(map[string]int64{"indexed": 5})
	out = Export()
	if strings.Contains(out, `healtharchive_jobs{status="queued"}`) {
		t.Fatalf("expected stale queued gauge to be replaced, got:\n%s", out)
	}
	if !strings.Contains(out, `healtharchive_jobs{status="indexed"} 5`) {
		t.Fatalf("expected indexed gauge, got:\n%s", out)
	}
}

func TestRecordJobTransitionAndCleanup(t *testing.T) {
	RecordJobTransition("retryable")
	RecordJobTransition("retryable")
	RecordCleanup("warcs_deleted", 4)

	out := Export()
	if !strings.Contains(out, `healtharchive_job_transitions_total{status="retryable"} 2`) {
		t.Fatalf("expected job transitions counter, got:\n%s", out)
	}
	if !strings.Contains(out, `healtharchive_cleanup_total{kind="warcs_deleted"} 4`) {
		t.Fatalf("expected cleanup counter, got:\n%s", out)
	}
}

func TestRecordPagesCrawledPerSource(t *testing.T) {
	RecordPagesCrawled("hc", 10, 2)

	out := Export()
	if !strings.Contains(out, `healtharchive_pages_crawled_total{source="hc"} 10`) {
		t.Fatalf("expected pages crawled counter, got:\n%s", out)
	}
	if !strings.Contains(out, `healtharchive_pages_failed_total{source="hc"} 2`) {
		t.Fatalf("expected pages failed counter, got:\n%s", out)
	}
}

func TestSnapshotAndVariantGauges(t *testing.T) {
	SetSnapshotsTotal(120)
	SetSourceVariantCounts(map[string]int64{"hc": 80, "phac": 40})

	out := Export()
	if !strings.Contains(out, "healtharchive_snapshots_total 120") {
		t.Fatalf("expected snapshots total gauge, got:\n%s", out)
	}
	if !strings.Contains(out, `healtharchive_source_page_variants{source="hc"} 80`) {
		t.Fatalf("expected per-source variant gauge, got:\n%s", out)
	}
}

func TestRecordSearchByMode(t *testing.T) {
	RecordSearch("plaintext")
	RecordSearch("plaintext")
	RecordSearch("boolean")

	out := Export()
	if !strings.Contains(out, `healtharchive_search_requests_total{mode="plaintext"} 2`) {
		t.Fatalf("expected plaintext search counter, got:\n%s", out)
	}
	if !strings.Contains(out, `healtharchive_search_requests_total{mode="boolean"} 1`) {
		t.Fatalf("expected boolean search counter, got:\n%s", out)
	}
}
