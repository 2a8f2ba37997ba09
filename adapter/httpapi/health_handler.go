package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// HealthChecker is anything the readiness probe can ping, so the handler
// doesn't need to import a concrete store type (e.g. the optional Redis L3
// backing store).
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness/readiness/metrics probes.
type HealthHandler struct {
	checks         map[string]HealthChecker
	metricsHandler http.Handler
}

// NewHealthHandler builds a HealthHandler. checks is name -> pingable
// collaborator (e.g. {"redis": store}); nil or empty means no dependencies
// to verify. metricsHandler serves /metrics (typically
// promhttp.HandlerFor(reg, ...) bound to this process's own Prometheus
// registry, not the global DefaultGatherer, so multiple servers in one
// process never collide on re-registration).
func NewHealthHandler(checks map[string]HealthChecker, metricsHandler http.Handler) *HealthHandler {
	return &HealthHandler{checks: checks, metricsHandler: metricsHandler}
}

// Register wires /health, /ready, and /metrics.
func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.health)
	app.Get("/ready", h.ready)
	app.Get("/metrics", adaptor.HTTPHandler(h.metricsHandler))
}

func (h *HealthHandler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	allHealthy := true
	for name, checker := range h.checks {
		if err := checker.Ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks[name] = "healthy"
		}
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
