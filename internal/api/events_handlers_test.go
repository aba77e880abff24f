package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvents_RequiresAuth(t *testing.T) {
	ts := setupTestServer(t, true)

	resp := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestEvents_StreamsUntilClientLeaves(t *testing.T) {
	ts := setupTestServer(t, true)
	token, _ := ts.register(t, "reader@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)

	resp := ts.do(req)

	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Body.String(), "event: connected")
	assert.Equal(t, 1, ts.sessions.Len(), "opening the stream opens the session")
	assert.Equal(t, 0, ts.sseManager.ClientCount())
}
