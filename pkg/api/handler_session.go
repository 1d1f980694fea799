package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// cancelSessionHandler handles POST /api/v1/sessions/:id/cancel.
func (s *Server) cancelSessionHandler(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}

	if !s.sessions.CancelSession(sessionID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no in-flight request for this session"})
		return
	}

	c.JSON(http.StatusOK, &CancelResponse{
		SessionID: sessionID,
		Message:   "cancellation requested",
	})
}

// sessionStatsHandler handles GET /api/v1/sessions/stats.
func (s *Server) sessionStatsHandler(c *gin.Context) {
	stats := s.sessions.Stats()
	c.JSON(http.StatusOK, toSessionStats(stats))
}
