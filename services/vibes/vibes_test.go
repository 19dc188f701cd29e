// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// Tests for the service wiring

package vibes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := New(Config{
		InMemory:      true,
		EnableMetrics: true,
		GinMode:       gin.TestMode,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestNew_InMemoryService(t *testing.T) {
	svc := newTestService(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	svc.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestNew_MetricsEndpoint(t *testing.T) {
	svc := newTestService(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	svc.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNew_RoutesRegistered(t *testing.T) {
	svc := newTestService(t)

	// An unknown experiment returns 404 from the handler, proving the v1
	// routes are wired to live storage.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/experiments/ghost", nil)
	svc.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The collection route exists and returns an empty list.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/v1/experiments", nil)
	svc.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClose_Idempotent(t *testing.T) {
	svc := newTestService(t)
	svc.Close()
	svc.Close()
}
