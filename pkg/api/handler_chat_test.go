package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doChat(t *testing.T, s *Server, req ChatRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, r)
	return w
}

func TestChatHandler_AgentLoopFallback_ReturnsTierAndText(t *testing.T) {
	s, _ := newTestServer(t, "here's your plan for the week")

	w := doChat(t, s, ChatRequest{UserID: "user-1", SessionID: "session-1", Text: "help me plan my week"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "agent_loop", resp.Tier)
	assert.Equal(t, "here's your plan for the week", resp.Text)
}

func TestChatHandler_SlashCommand_ListsTasks(t *testing.T) {
	s, tasks := newTestServer(t, "unused")

	_, err := tasks.Insert(t.Context(), "user-1", map[string]interface{}{"title": "Draft brief", "status": "todo"})
	require.NoError(t, err)

	w := doChat(t, s, ChatRequest{UserID: "user-1", SessionID: "session-2", Text: "/list"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "command", resp.Tier)
	assert.Contains(t, resp.Text, "Draft brief")
}

func TestChatHandler_MissingText_ReturnsBadRequest(t *testing.T) {
	s, _ := newTestServer(t, "unused")

	w := doChat(t, s, ChatRequest{UserID: "user-1", SessionID: "session-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandler_MissingUserID_FallsBackToHeaderOrClientID(t *testing.T) {
	s, _ := newTestServer(t, "ok")

	w := doChat(t, s, ChatRequest{SessionID: "session-1", Text: "hello there"})
	assert.Equal(t, http.StatusOK, w.Code)
}
