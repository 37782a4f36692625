// Package http is the Trigger API surface (spec §6), grounded on the
// teacher's internal/http/router.go middleware chain (locals injection
// then request-log/metrics middleware then route groups) and
// handlers_jobs.go envelope shape.
package http

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"webmonitor/internal/config"
	"webmonitor/internal/metrics"
	"webmonitor/internal/store"
)

const version = "0.1.0"

// Server wraps the fiber app bound to one store and config.
type Server struct {
	app    *fiber.App
	config *config.Config
	store  store.Store
	logger *slog.Logger
}

// NewServer builds the Trigger API, wiring the store and config into
// route handlers via fiber locals.
func NewServer(cfg *config.Config, st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	app := fiber.New()

	app.Use(func(c *fiber.Ctx) error {
		c.Locals("store", st)
		c.Locals("config", cfg)
		return c.Next()
	})

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := c.Path()

		metrics.RecordRequest(method, path, status, latency.Milliseconds())
		logger.Info("request",
			"request_id", reqID,
			"method", method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
		)

		return err
	})

	app.Get("/health", healthHandler)
	app.Get("/metrics", metricsHandler)

	app.Post("/jobs", createJobHandler)
	app.Get("/jobs", listJobsHandler)
	app.Get("/jobs/stats", jobStatsHandler)
	app.Post("/jobs/:id/cancel", cancelJobHandler)
	app.Post("/jobs/:id/retry", retryJobHandler)

	app.Post("/scans/:base/compare/:other", compareScansHandler)

	return &Server{app: app, config: cfg, store: st, logger: logger}
}

// Listen starts the HTTP listener.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

