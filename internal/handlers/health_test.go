package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hicap-oss/claude-code-router/internal/llm"
	"github.com/hicap-oss/claude-code-router/internal/providers"
)

func TestHealthHandler(t *testing.T) {
	registry := providers.NewRegistry()
	registry.Register(&providers.Entry{Provider: &llm.Provider{Name: "hicap"}})

	rr := httptest.NewRecorder()
	NewHealthHandler(registry, testLogger()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, []any{"hicap"}, body["providers"])
}
