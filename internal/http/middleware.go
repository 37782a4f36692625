package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"webmonitor/internal/metrics"
	"webmonitor/internal/model"
	"webmonitor/internal/store"
)

func storeFromCtx(c *fiber.Ctx) store.Store {
	return c.Locals("store").(store.Store)
}

// healthHandler reports process liveness and a shallow persistence
// probe, matching the teacher's /healthz?deep=true shape.
func healthHandler(c *fiber.Ctx) error {
	st := storeFromCtx(c)

	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	if _, err := st.ListSites(ctx, nil, nil); err != nil {
		status = "error"
	}

	resp := HealthResponse{Status: status, Timestamp: time.Now().UTC(), Version: version}
	if status != "ok" {
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func metricsHandler(c *fiber.Ctx) error {
	c.Type("text/plain")
	return c.SendString(metrics.Render())
}

func parseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	return uuid.Parse(c.Params(name))
}

// statusPtr is a convenience helper for optional query-string filters
// that map onto model enum types.
func statusPtr(v string) *model.JobStatus {
	if v == "" {
		return nil
	}
	s := model.JobStatus(v)
	return &s
}
