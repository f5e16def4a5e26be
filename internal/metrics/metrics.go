package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics, in-memory only (spec §6: "Prometheus
// text; includes job counts by status, cleanup counts, snapshot
// totals, per-source variants, pages crawled/failed counters").

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	jobTransitionsTotal = make(map[string]int64)
	jobStatusCounts     = make(map[string]int64)

	cleanupTotal = make(map[string]int64)

	snapshotsTotal  int64
	sourceVariants  = make(map[string]int64)
	pagesCrawled    = make(map[string]int64)
	pagesFailed     = make(map[string]int64)
	searchRequests  = make(map[string]int64)
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordJobTransition increments the counter of jobs that have entered
// status (e.g. "queued", "retryable", "indexed", "failed").
func RecordJobTransition(status string) {
	if status == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	jobTransitionsTotal[status]++
}

// SetJobStatusCounts replaces the point-in-time job-count-by-status
// gauge with counts, the snapshot §6's "jobs: {<status>: count}" health
// payload is also built from (store.StatusCounts).
func SetJobStatusCounts(counts map[string]int64) {
	mu.Lock()
	defer mu.Unlock()
	jobStatusCounts = make(map[string]int64, len(counts))
	for k, v := range counts {
		jobStatusCounts[k] = v
	}
}

// RecordCleanup increments a cleanup counter by kind (e.g.
// "jobs_deleted", "snapshots_deleted", "warcs_deleted").
func RecordCleanup(kind string, count int64) {
	if count <= 0 || kind == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	cleanupTotal[kind] += count
}

// SetSnapshotsTotal replaces the gauge tracking the overall snapshot
// count across all sources.
func SetSnapshotsTotal(total int64) {
	mu.Lock()
	defer mu.Unlock()
	snapshotsTotal = total
}

// SetSourceVariantCounts replaces the per-source distinct-page-variant
// gauge (distinct normalized_url_group values per source).
func SetSourceVariantCounts(counts map[string]int64) {
	mu.Lock()
	defer mu.Unlock()
	sourceVariants = make(map[string]int64, len(counts))
	for k, v := range counts {
		sourceVariants[k] = v
	}
}

// RecordPagesCrawled increments per-source crawled/failed page
// counters after a job finishes (spec §6 "pages crawled/failed
// counters").
func RecordPagesCrawled(sourceCode string, crawled, failed int64) {
	if sourceCode == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if crawled > 0 {
		pagesCrawled[sourceCode] += crawled
	}
	if failed > 0 {
		pagesFailed[sourceCode] += failed
	}
}

// RecordSearch increments the search-requests counter by the query
// mode that served it (plaintext, url, boolean).
func RecordSearch(mode string) {
	if mode == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	searchRequests[mode]++
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP healtharchive_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE healtharchive_http_requests_total counter\n")

	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})
	for _, k := range reqKeys {
		v := requestsTotal[k]
		fmt.Fprintf(&b, "healtharchive_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, v)
	}

	b.WriteString("# HELP healtharchive_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE healtharchive_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP healtharchive_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE healtharchive_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})
	for _, k := range latKeys {
		fmt.Fprintf(&b, "healtharchive_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "healtharchive_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP healtharchive_job_transitions_total Total jobs that entered a status\n")
	b.WriteString("# TYPE healtharchive_job_transitions_total counter\n")
	writeStringCounter(&b, jobTransitionsTotal, "healtharchive_job_transitions_total", "status")

	b.WriteString("# HELP healtharchive_jobs Current job count by status\n")
	b.WriteString("# TYPE healtharchive_jobs gauge\n")
	writeStringCounter(&b, jobStatusCounts, "healtharchive_jobs", "status")

	b.WriteString("# HELP healtharchive_cleanup_total Total cleanup actions by kind\n")
	b.WriteString("# TYPE healtharchive_cleanup_total counter\n")
	writeStringCounter(&b, cleanupTotal, "healtharchive_cleanup_total", "kind")

	b.WriteString("# HELP healtharchive_snapshots_total Current total indexed snapshot count\n")
	b.WriteString("# TYPE healtharchive_snapshots_total gauge\n")
	fmt.Fprintf(&b, "healtharchive_snapshots_total %d\n", snapshotsTotal)

	b.WriteString("# HELP healtharchive_source_page_variants Distinct page variants per source\n")
	b.WriteString("# TYPE healtharchive_source_page_variants gauge\n")
	writeStringCounter(&b, sourceVariants, "healtharchive_source_page_variants", "source")

	b.WriteString("# HELP healtharchive_pages_crawled_total Total pages crawled successfully per source\n")
	b.WriteString("# TYPE healtharchive_pages_crawled_total counter\n")
	writeStringCounter(&b, pagesCrawled, "healtharchive_pages_crawled_total", "source")

	b.WriteString("# HELP healtharchive_pages_failed_total Total pages that failed to crawl per source\n")
	b.WriteString("# TYPE healtharchive_pages_failed_total counter\n")
	writeStringCounter(&b, pagesFailed, "healtharchive_pages_failed_total", "source")

	b.WriteString("# HELP healtharchive_search_requests_total Total search requests by query mode\n")
	b.WriteString("# TYPE healtharchive_search_requests_total counter\n")
	writeStringCounter(&b, searchRequests, "healtharchive_search_requests_total", "mode")

	return b.String()
}

// writeStringCounter renders a label->value map as sorted metric lines
// sharing a single label name, keeping Export's per-metric blocks
// uniform regardless of which map backs them.
func writeStringCounter(b *strings.Builder, m map[string]int64, metric, label string) {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s{%s=\"%s\"} %d\n", metric, label, k, m[k])
	}
}
