package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"healtharchive/internal/apperrors"
	"healtharchive/internal/metrics"
	"healtharchive/internal/model"
)

// adminListJobsHandler implements `GET /api/admin/jobs`: filterable by
// source/status, `limit≤500` (spec §6).
func (s *Server) adminListJobsHandler(c *fiber.Ctx) error {
	limit := queryIntDefault(c, "limit", 100)
	if limit > 500 {
		limit = 500
	}

	var sourceID *uuid.UUID
	if code := c.Query("source"); code != "" {
		src, err := s.Store.GetSourceByCode(c.Context(), code)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return c.JSON(fiber.Map{"jobs": []model.ArchiveJob{}})
			}
			return writeError(c, err, false)
		}
		sourceID = &src.ID
	}

	var status *model.JobStatus
	if raw := c.Query("status"); raw != "" {
		st := model.JobStatus(raw)
		status = &st
	}

	jobs, err := s.Store.ListJobs(c.Context(), sourceID, status, limit)
	if err != nil {
		return writeError(c, err, false)
	}
	return c.JSON(fiber.Map{"jobs": jobs})
}

// adminGetJobHandler implements `GET /api/admin/jobs/{id}`.
func (s *Server) adminGetJobHandler(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, apperrors.Validationf("invalid job id"), false)
	}
	job, err := s.Store.GetJob(c.Context(), id)
	if err != nil {
		return writeError(c, err, false)
	}
	return c.JSON(job)
}

// adminJobStatusCountsHandler implements
// `GET /api/admin/jobs/status-counts`.
func (s *Server) adminJobStatusCountsHandler(c *fiber.Ctx) error {
	counts, err := s.Store.StatusCounts(c.Context())
	if err != nil {
		return writeError(c, err, false)
	}
	out := fiber.Map{}
	for status, n := range counts {
		out[string(status)] = n
	}
	return c.JSON(fiber.Map{"counts": out})
}

// adminJobSnapshotsHandler implements
// `GET /api/admin/jobs/{id}/snapshots`.
func (s *Server) adminJobSnapshotsHandler(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, apperrors.Validationf("invalid job id"), false)
	}
	if _, err := s.Store.GetJob(c.Context(), id); err != nil {
		return writeError(c, err, false)
	}

	snaps, err := s.Store.ListSnapshotsByJob(c.Context(), id)
	if err != nil {
		return writeError(c, err, false)
	}
	return c.JSON(fiber.Map{"snapshots": snaps})
}

// metricsHandler implements `GET /metrics`: Prometheus text exposition.
func (s *Server) metricsHandler(c *fiber.Ctx) error {
	c.Type("text/plain")
	return c.SendString(metrics.Export())
}
