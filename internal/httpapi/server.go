// Package httpapi implements the public search/browse surface and the
// token-gated admin surface (spec §6), on the teacher's `gofiber/fiber/v2`
// transport.
package httpapi

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"

	"healtharchive/internal/config"
	"healtharchive/internal/search"
	"healtharchive/internal/store"
	"healtharchive/internal/usage"
)

// Server wires the store, search engine, and usage tracker into a
// Fiber app (the teacher's router.go wiring pattern, generalized past
// its single-tenant SaaS surface to this spec's public/admin split).
type Server struct {
	App    *fiber.App
	Config *config.Config
	Store  *store.Store
	Search *search.Engine
	Usage  *usage.Tracker
	Logger zerolog.Logger
}

// NewServer builds the Fiber app and registers every route.
func NewServer(cfg *config.Config, st *store.Store, searchEngine *search.Engine, usageTracker *usage.Tracker, logger zerolog.Logger) *Server {
	s := &Server{
		App:    fiber.New(fiber.Config{DisableStartupMessage: true}),
		Config: cfg,
		Store:  st,
		Search: searchEngine,
		Usage:  usageTracker,
		Logger: logger,
	}

	s.App.Use(requestMetricsMiddleware())
	if len(cfg.CORSOrigins) > 0 {
		s.App.Use(cors.New(cors.Config{AllowOrigins: joinOrigins(cfg.CORSOrigins)}))
	}

	s.registerRoutes()
	return s
}

// Listen starts the HTTP server on cfg.ServerHost:cfg.ServerPort.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.Config.ServerHost, s.Config.ServerPort)
	return s.App.Listen(addr)
}

// Shutdown gracefully stops the server, letting in-flight requests
// finish.
func (s *Server) Shutdown() error {
	return s.App.Shutdown()
}

func joinOrigins(origins []string) string {
	out := origins[0]
	for _, o := range origins[1:] {
		out += "," + o
	}
	return out
}
