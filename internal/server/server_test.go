package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hicap-oss/claude-code-router/internal/config"
	"github.com/hicap-oss/claude-code-router/internal/handlers"
	"github.com/hicap-oss/claude-code-router/internal/transformer"
)

var fixedTokens = handlers.WithTokenCounter(func(string) int { return 42 })

func TestProxyIntegration(t *testing.T) {
	var upstreamHeader http.Header
	var upstreamBody map[string]any

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHeader = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &upstreamBody)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl-1","choices":[{"message":{"role":"assistant","content":"hi"}}]}`))
	}))
	defer upstream.Close()

	cfg := &config.Config{
		Host:   "127.0.0.1",
		Port:   8080,
		APIKey: "test-key",
		Providers: []config.Provider{
			{
				Name:    "hicap",
				APIBase: upstream.URL,
				APIKey:  "sk-123",
				Models:  []string{"gpt-4o"},
				Transformers: []config.TransformerSpec{
					{Name: "cleancache"},
					{Name: "maxtoken", Options: map[string]any{"max_tokens": 1024}},
				},
				Auth: &config.TransformerSpec{Name: "hicap"},
			},
		},
		Router: config.RouterConfig{
			Default: "hicap,gpt-4o",
		},
	}

	cfgMgr := config.NewManager(t.TempDir())
	require.NoError(t, cfgMgr.Save(cfg))

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	srv, err := New(cfgMgr, transformer.DefaultRegistry(), logger, "claude-code-router-test", fixedTokens)
	require.NoError(t, err)

	requestBody := map[string]any{
		"model":      "gpt-4o",
		"max_tokens": 100000,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": "Hello, world!", "cache_control": map[string]any{"type": "ephemeral"}},
				},
			},
		},
	}
	jsonBody, _ := json.Marshal(requestBody)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-key")

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"id":"chatcmpl-1","choices":[{"message":{"role":"assistant","content":"hi"}}]}`, rr.Body.String())

	assert.Equal(t, "sk-123", upstreamHeader.Get("Api-Key"))
	assert.Empty(t, upstreamHeader.Get("Authorization"), "gateway credentials must not leak upstream")

	assert.Equal(t, float64(1024), upstreamBody["max_tokens"])
	messages := upstreamBody["messages"].([]any)
	part := messages[0].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.NotContains(t, part, "cache_control")
	assert.Equal(t, "Hello, world!", part["text"])
}

func TestProxyIntegration_Unauthorized(t *testing.T) {
	cfgMgr := config.NewManager(t.TempDir())
	require.NoError(t, cfgMgr.Save(&config.Config{
		APIKey:    "test-key",
		Providers: []config.Provider{{Name: "hicap", APIBase: "http://127.0.0.1:1", APIKey: "sk-123"}},
		Router:    config.RouterConfig{Default: "hicap,gpt-4o"},
	}))

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	srv, err := New(cfgMgr, transformer.DefaultRegistry(), logger, "test")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/log_event", bytes.NewReader([]byte(`{"events":[]}`))))
	assert.Equal(t, http.StatusAccepted, rr.Code, "client telemetry is answered locally")
}

func TestNew_UnknownTransformer(t *testing.T) {
	cfgMgr := config.NewManager(t.TempDir())
	require.NoError(t, cfgMgr.Save(&config.Config{
		Providers: []config.Provider{{
			Name:         "hicap",
			APIBase:      "http://127.0.0.1:1",
			APIKey:       "sk-123",
			Transformers: []config.TransformerSpec{{Name: "nope"}},
		}},
	}))

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	_, err := New(cfgMgr, transformer.DefaultRegistry(), logger, "test")
	assert.Error(t, err)
}
