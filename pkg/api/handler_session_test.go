package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelSessionHandler_NoInFlightRequest_ReturnsNotFound(t *testing.T) {
	s, _ := newTestServer(t, "unused")

	r := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/never-existed/cancel", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelSessionHandler_InFlightRequest_CancelsAndReturnsOK(t *testing.T) {
	s, _ := newTestServer(t, "unused")

	req, err := s.sessions.Acquire(t.Context(), "session-1")
	require.NoError(t, err)
	defer req.Release()

	r := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/session-1/cancel", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp CancelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "session-1", resp.SessionID)
	assert.Error(t, req.Context().Err())
}

func TestSessionStatsHandler_ReportsUtilization(t *testing.T) {
	s, _ := newTestServer(t, "unused")

	req, err := s.sessions.Acquire(t.Context(), "session-1")
	require.NoError(t, err)
	defer req.Release()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/stats", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var stats SessionStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.ActiveRequests)
	assert.Equal(t, 1, stats.ActiveSessions)
}
