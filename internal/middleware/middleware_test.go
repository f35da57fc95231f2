package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hicap-oss/claude-code-router/internal/config"
)

func testSet(t *testing.T, apiKey string) MiddlewareSet {
	t.Helper()

	cfgMgr := config.NewManager(t.TempDir())
	require.NoError(t, cfgMgr.Save(&config.Config{APIKey: apiKey}))

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewMiddlewareSet(cfgMgr, logger)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthMiddleware(t *testing.T) {
	handler := testSet(t, "gateway-key").DefaultChain().Handler(okHandler)

	testCases := []struct {
		name         string
		header       string
		value        string
		expectedCode int
	}{
		{"bearer", "Authorization", "Bearer gateway-key", http.StatusOK},
		{"x-api-key", "X-API-Key", "gateway-key", http.StatusOK},
		{"api-key", "api-key", "gateway-key", http.StatusOK},
		{"wrong key", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"missing", "", "", http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func TestAuthMiddleware_NoKeyConfigured(t *testing.T) {
	handler := testSet(t, "").DefaultChain().Handler(okHandler)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHealthChain_SkipsAuth(t *testing.T) {
	handler := testSet(t, "gateway-key").HealthChain().Handler(okHandler)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := testSet(t, "").HealthChain().Handler(panicking)

	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := New(mark("first")).Then(mark("second")).Handler(okHandler)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestAuthMiddleware_ErrorEnvelope(t *testing.T) {
	handler := testSet(t, "gateway-key").DefaultChain().Handler(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	req.Header.Set("Authorization", "Bearer wrong")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), `"authentication_error"`)
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	var seen string
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
	})
	handler := testSet(t, "").HealthChain().Handler(echo)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", rr.Header().Get(RequestIDHeader))
}

func TestGatewayToken(t *testing.T) {
	testCases := []struct {
		name     string
		header   http.Header
		expected string
	}{
		{"bearer", http.Header{"Authorization": {"Bearer k1"}}, "k1"},
		{"lowercase scheme", http.Header{"Authorization": {"bearer k2"}}, "k2"},
		{"x-api-key", http.Header{"X-Api-Key": {"k3"}}, "k3"},
		{"api-key", http.Header{"Api-Key": {"k4"}}, "k4"},
		{"basic is ignored", http.Header{"Authorization": {"Basic abc"}}, ""},
		{"none", http.Header{}, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, gatewayToken(tc.header))
		})
	}
}

func TestTelemetryBlockers(t *testing.T) {
	var reached bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusTeapot)
	})
	handler := testSet(t, "gateway-key").DefaultChain().Handler(next)

	testCases := []struct {
		name         string
		host         string
		path         string
		expectedCode int
		expectedBody string
	}{
		{"log event", "127.0.0.1:6970", "/v1/log_event", http.StatusAccepted, `{"success":true}`},
		{"rgstr", "127.0.0.1:6970", "/v1/rgstr", http.StatusAccepted, `{"success":true}`},
		{"telemetry", "127.0.0.1:6970", "/telemetry/batch", http.StatusAccepted, `{"success":true}`},
		{"statsig host", "statsig.anthropic.com", "/anything", http.StatusAccepted, `{"success":true}`},
		{"claude code metrics", "127.0.0.1:6970", "/api/claude_code/metrics", http.StatusOK, `{"accepted_count":0,"rejected_count":0}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reached = false

			req := httptest.NewRequest(http.MethodPost, "http://"+tc.host+tc.path, nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code, "blocked before auth, without a gateway key")
			assert.JSONEq(t, tc.expectedBody, rr.Body.String())
			assert.False(t, reached)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	req.Header.Set("Authorization", "Bearer gateway-key")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.True(t, reached, "chat paths must reach the proxy")
	assert.Equal(t, http.StatusTeapot, rr.Code)
}
