package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthCheck is a named dependency check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	checks []HealthCheck
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler that runs checks on every request.
func NewHealthHandler(logger *slog.Logger, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logHandler(logger, "health")}
}

// HealthCheck responds 200 when every dependency answers and 503 otherwise.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed",
				slog.String("dependency", c.Name),
				slog.String("error", err.Error()),
			)
			deps[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[c.Name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":       state,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"dependencies": deps,
	})
}
