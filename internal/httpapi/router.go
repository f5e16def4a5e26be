package httpapi

// registerRoutes mounts the public surface (no auth) and the admin/
// metrics surface (bearer ADMIN_TOKEN, per spec §6/§7's "refuse with
// 500 and a clear message at startup" handled by config.Validate
// before the server is ever constructed).
func (s *Server) registerRoutes() {
	api := s.App.Group("/api")

	api.Get("/health", s.healthHandler)
	api.Get("/stats", s.statsHandler)
	api.Get("/sources", s.sourcesHandler)
	api.Get("/search", s.searchHandler)
	api.Get("/snapshot/:id", s.snapshotHandler)
	api.Get("/snapshots/raw/:id", s.rawSnapshotHandler)
	api.Get("/snapshots/:id/timeline", s.snapshotTimelineHandler)
	api.Get("/changes", s.changesHandler)
	api.Get("/changes/compare", s.changesCompareHandler)

	adminMw := adminTokenMiddleware(s.Config.AdminToken)

	admin := api.Group("/admin", adminMw)
	admin.Get("/jobs", s.adminListJobsHandler)
	admin.Get("/jobs/status-counts", s.adminJobStatusCountsHandler)
	admin.Get("/jobs/:id", s.adminGetJobHandler)
	admin.Get("/jobs/:id/snapshots", s.adminJobSnapshotsHandler)

	s.App.Get("/metrics", adminMw, s.metricsHandler)
}
