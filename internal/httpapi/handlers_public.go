package httpapi

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"healtharchive/internal/apperrors"
	"healtharchive/internal/metrics"
	"healtharchive/internal/safety"
	"healtharchive/internal/search"
	"healtharchive/internal/warcstore"
)

// healthHandler implements `GET /api/health` (spec §6): db/jobs/snapshots
// checks, 500 on DB error.
func (s *Server) healthHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status": "error",
			"checks": fiber.Map{"db": "error"},
		})
	}

	counts, err := s.Store.StatusCounts(ctx)
	if err != nil {
		return writeError(c, err, false)
	}
	jobs := fiber.Map{}
	for status, n := range counts {
		jobs[string(status)] = n
	}

	total, err := s.Store.TotalSnapshots(ctx)
	if err != nil {
		return writeError(c, err, false)
	}

	return c.JSON(fiber.Map{
		"status": "ok",
		"checks": fiber.Map{
			"db":        "ok",
			"jobs":      jobs,
			"snapshots": fiber.Map{"total": total},
		},
	})
}

// statsHandler implements `GET /api/stats`: a cacheable usage aggregate
// (spec §6).
func (s *Server) statsHandler(c *fiber.Ctx) error {
	totals, err := s.Usage.Stats(c.Context())
	if err != nil {
		return writeError(c, err, false)
	}
	return c.JSON(fiber.Map{"events": totals, "windowDays": s.Config.UsageMetricsWindowDays})
}

// sourcesHandler implements `GET /api/sources`: per-source counts and
// capture ranges.
func (s *Server) sourcesHandler(c *fiber.Ctx) error {
	summaries, err := s.Store.SourceSummaries(c.Context())
	if err != nil {
		return writeError(c, err, false)
	}

	out := make([]fiber.Map, 0, len(summaries))
	for _, sm := range summaries {
		row := fiber.Map{"sourceCode": sm.SourceCode, "snapshotCount": sm.SnapshotCount}
		if sm.EarliestCapture.Valid {
			row["earliestCapture"] = sm.EarliestCapture.Time.UTC().Format(time.RFC3339)
		}
		if sm.LatestCapture.Valid {
			row["latestCapture"] = sm.LatestCapture.Time.UTC().Format(time.RFC3339)
		}
		out = append(out, row)
	}
	return c.JSON(fiber.Map{"sources": out})
}

// searchHandler implements `GET /api/search` per spec §4.I/§6. Query
// string defaulting of page/pageSize happens here (not inside
// search.Engine, see search.Params.applyDefaults), so an explicit
// `pageSize=0` still reaches Validate and fails with 422.
func (s *Server) searchHandler(c *fiber.Ctx) error {
	p := search.Params{
		Q:             c.Query("q"),
		SourceCode:    c.Query("source"),
		Sort:          c.Query("sort"),
		View:          c.Query("view"),
		Language:      c.Query("language"),
		IncludeNon2xx: c.QueryBool("includeNon2xx", false),
		Page:          queryIntDefault(c, "page", 1),
		PageSize:      queryIntDefault(c, "pageSize", 20),
	}

	if from := c.Query("from"); from != "" {
		t, err := search.ParseDate(from)
		if err != nil {
			return writeError(c, err, false)
		}
		p.From = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := search.ParseDate(to)
		if err != nil {
			return writeError(c, err, false)
		}
		p.To = &t
	}

	resp, err := s.Search.Search(c.Context(), p)
	if err != nil {
		return writeError(c, err, false)
	}

	metrics.RecordSearch(string(search.SelectMode(p.Q)))
	s.Usage.RecordEvent("search")
	return c.JSON(fiber.Map{
		"results":  resp.Results,
		"total":    resp.Total,
		"page":     resp.Page,
		"pageSize": resp.PageSize,
	})
}

// snapshotHandler implements `GET /api/snapshot/{id}`: metadata, 404 if
// missing.
func (s *Server) snapshotHandler(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, apperrors.Validationf("invalid snapshot id"), false)
	}
	snap, err := s.Store.GetSnapshot(c.Context(), id)
	if err != nil {
		return writeError(c, err, false)
	}
	return c.JSON(snap)
}

// rawSnapshotHandler implements `GET /api/snapshots/raw/{id}`:
// reconstructs HTML from the referenced WARC record, 404 if the
// snapshot or WARC file is missing, 503 if the archive filesystem is
// unreachable (spec §7's narrowed StorageUnavailable mapping).
func (s *Server) rawSnapshotHandler(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, apperrors.Validationf("invalid snapshot id"), true)
	}
	snap, err := s.Store.GetSnapshot(c.Context(), id)
	if err != nil {
		return writeError(c, err, true)
	}
	if snap.WARCPath == "" {
		return writeError(c, apperrors.NotFoundf("no warc recorded for snapshot %s", id), true)
	}

	rec, err := warcstore.SeekRecord(snap.WARCPath, snap.WARCRecordID, snap.URL, snap.CaptureTimestamp)
	if err != nil {
		if safety.IsStaleMountError(err) {
			return writeError(c, apperrors.StorageUnavailable(err), true)
		}
		return writeError(c, apperrors.NotFoundf("warc file missing for snapshot %s", id), true)
	}

	s.Usage.RecordEvent("raw_snapshot_view")
	c.Type("html")
	return c.Send(rec.Body)
}

// changesHandler implements `GET /api/changes`: the recent change
// feed across all groups.
func (s *Server) changesHandler(c *fiber.Ctx) error {
	limit := queryIntDefault(c, "limit", 50)
	changes, err := s.Store.ListRecentChanges(c.Context(), limit)
	if err != nil {
		return writeError(c, err, false)
	}
	return c.JSON(fiber.Map{"changes": changes})
}

// changesCompareHandler implements `GET /api/changes/compare`: all
// computed changes for one normalized URL group (identified by `url`
// or `group`).
func (s *Server) changesCompareHandler(c *fiber.Ctx) error {
	group := c.Query("group")
	if group == "" {
		if u := c.Query("url"); u != "" {
			group = search.NormalizeURL(u)
		}
	}
	if group == "" {
		return writeError(c, apperrors.Validationf("group or url is required"), false)
	}
	changes, err := s.Store.ListChangesForGroup(c.Context(), group)
	if err != nil {
		return writeError(c, err, false)
	}
	return c.JSON(fiber.Map{"group": group, "changes": changes})
}

// snapshotTimelineHandler implements `GET /api/snapshots/{id}/timeline`:
// every snapshot in the same normalized URL group as {id}, oldest
// first, alongside the computed changes between adjacent pairs.
func (s *Server) snapshotTimelineHandler(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, apperrors.Validationf("invalid snapshot id"), false)
	}
	snap, err := s.Store.GetSnapshot(c.Context(), id)
	if err != nil {
		return writeError(c, err, false)
	}

	snaps, err := s.Store.ListSnapshotsByGroup(c.Context(), snap.NormalizedURLGroup)
	if err != nil {
		return writeError(c, err, false)
	}
	changes, err := s.Store.ListChangesForGroup(c.Context(), snap.NormalizedURLGroup)
	if err != nil {
		return writeError(c, err, false)
	}

	return c.JSON(fiber.Map{
		"normalizedUrlGroup": snap.NormalizedURLGroup,
		"snapshots":          snaps,
		"changes":            changes,
	})
}

func queryIntDefault(c *fiber.Ctx, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
