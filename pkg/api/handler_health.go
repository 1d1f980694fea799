package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coretask-core/coretask/pkg/database"
	"github.com/coretask-core/coretask/pkg/session"
)

// healthHandler handles GET /health. Only the core's own components
// (database, in-process concurrency fabric) are checked; external LLM
// providers and discovery servers are excluded so an outage there doesn't
// make an orchestrator restart an otherwise-healthy process.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := "healthy"
	dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
	if err != nil {
		status = "unhealthy"
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, &HealthResponse{
		Status:        status,
		Database:      dbHealth,
		Configuration: s.cfg.Stats(),
		Sessions:      toSessionStats(s.sessions.Stats()),
	})
}

func toSessionStats(stats session.Stats) SessionStats {
	return SessionStats{
		ActiveRequests:      stats.ActiveRequests,
		RequestCapacity:     stats.RequestCapacity,
		ActiveExternalCalls: stats.ActiveExternalCalls,
		ExternalCapacity:    stats.ExternalCapacity,
		ActiveSessions:      stats.ActiveSessions,
	}
}
