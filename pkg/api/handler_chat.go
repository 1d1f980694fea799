package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// maxChatTextLength bounds the request body. The core's utterances are
// short commands/questions, not chat transcripts, so a tight bound catches
// pathological input early.
const maxChatTextLength = 10_000

// chatHandler handles POST /api/v1/chat. It acquires this session's turn
// (spec §5: in-flight-request budget, per-session serialization), routes
// the utterance through the cascade, and releases the turn regardless of
// outcome.
func (s *Server) chatHandler(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Text) > maxChatTextLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text exceeds maximum length"})
		return
	}
	if req.UserID == "" {
		req.UserID = extractUserID(c)
	}

	sreq, err := s.sessions.Acquire(c.Request.Context(), req.SessionID)
	if err != nil {
		code, msg := mapAcquireError(err)
		c.JSON(code, gin.H{"error": msg})
		return
	}
	defer sreq.Release()

	resp, err := s.router.Handle(sreq.Context(), req.Text, req.UserID, req.SessionID)
	if err != nil {
		code, msg := mapCoreError(err)
		c.JSON(code, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, &ChatResponse{Tier: resp.Tier.String(), Text: resp.Text})
}
