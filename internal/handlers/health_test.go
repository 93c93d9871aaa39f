package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandlerHealthy(t *testing.T) {
	handler := NewHealthHandler(map[string]Pinger{
		"redis":      pingFunc(func(context.Context) error { return nil }),
		"generation": pingFunc(func(context.Context) error { return nil }),
	}, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "dialogue-engine", resp.Service)
	assert.Equal(t, "healthy", resp.Components["redis"])
}

func TestHealthHandlerDegraded(t *testing.T) {
	handler := NewHealthHandler(map[string]Pinger{
		"redis":      pingFunc(func(context.Context) error { return assert.AnError }),
		"generation": pingFunc(func(context.Context) error { return nil }),
	}, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unhealthy", resp.Components["redis"])
	assert.Equal(t, "healthy", resp.Components["generation"])
}
