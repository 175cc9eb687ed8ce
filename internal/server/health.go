package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const readinessProbeTimeout = 5 * time.Second

// handleHealth is the liveness probe.
func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "GoNotify server is running!")
}

// handleReadiness runs every configured check and reports the first failure.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	for _, hc := range s.healthChecks {
		if err := hc.Check(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status":       "unhealthy",
				"failed_check": hc.Name,
				"error":        err.Error(),
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ready",
		"uptime":      time.Since(s.startTime).Seconds(),
		"connections": s.registry.Len(),
	})
}
