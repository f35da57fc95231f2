package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hicap-oss/claude-code-router/internal/config"
	"github.com/hicap-oss/claude-code-router/internal/dispatch"
	"github.com/hicap-oss/claude-code-router/internal/llm"
	"github.com/hicap-oss/claude-code-router/internal/providers"
	"github.com/hicap-oss/claude-code-router/internal/transformer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fixedTokens(n int) Option {
	return WithTokenCounter(func(string) int { return n })
}

type upstreamCapture struct {
	header http.Header
	body   map[string]any
}

func newUpstream(t *testing.T, status int, respBody string) (*httptest.Server, *upstreamCapture) {
	t.Helper()

	capture := &upstreamCapture{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capture.header = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &capture.body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(respBody))
	}))
	t.Cleanup(server.Close)

	return server, capture
}

func newHandler(t *testing.T, cfg *config.Config, pipelineOpts []transformer.PipelineOption, opts ...Option) *ProxyHandler {
	t.Helper()

	cfgMgr := config.NewManager(t.TempDir())
	require.NoError(t, cfgMgr.Save(cfg))

	registry, err := providers.NewFromConfig(cfg, transformer.DefaultRegistry())
	require.NoError(t, err)

	logger := testLogger()
	pipeline := transformer.NewPipeline(logger, pipelineOpts...)

	return NewProxyHandler(cfgMgr, registry, pipeline, dispatch.New(dispatch.WithLogger(logger)), logger, opts...)
}

func hicapConfig(apiBase, apiKey string) *config.Config {
	return &config.Config{
		Providers: []config.Provider{{
			Name:         "hicap",
			APIBase:      apiBase,
			APIKey:       apiKey,
			Models:       []string{"gpt-4o"},
			DefaultModel: "gpt-4o",
			Transformers: []config.TransformerSpec{{Name: "hicap"}, {Name: "usage"}},
			Auth:         &config.TransformerSpec{Name: "hicap"},
		}},
		Router: config.RouterConfig{Default: "hicap,gpt-4o"},
	}
}

func postChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer gateway-key")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

const chatBody = `{"model":"x","messages":[{"role":"user","content":"Hello, world!"}]}`

func TestServeHTTP_HicapHeaders(t *testing.T) {
	upstream, capture := newUpstream(t, http.StatusOK,
		`{"id":"r1","choices":[],"usage":{"prompt_tokens":12,"completion_tokens":3}}`)
	handler := newHandler(t, hicapConfig(upstream.URL, "sk-123"), nil, fixedTokens(10))

	rr := postChat(t, handler, chatBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, "sk-123", capture.header.Get("Api-Key"))
	assert.Empty(t, capture.header.Values("Authorization"), "bearer token must not reach the upstream")
	assert.Equal(t, "gpt-4o", capture.body["model"], "model should be the resolved route model")

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	usage := resp["usage"].(map[string]any)
	assert.Equal(t, float64(12), usage["input_tokens"])
	assert.Equal(t, float64(3), usage["output_tokens"])
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
}

func TestServeHTTP_UpstreamErrorPassesThrough(t *testing.T) {
	upstream, _ := newUpstream(t, http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`)
	handler := newHandler(t, hicapConfig(upstream.URL, "sk-123"), nil, fixedTokens(10))

	rr := postChat(t, handler, chatBody)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.JSONEq(t, `{"error":{"message":"rate limited"}}`, rr.Body.String())
}

func TestServeHTTP_Errors(t *testing.T) {
	upstream, _ := newUpstream(t, http.StatusOK, `{}`)

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	testCases := []struct {
		name         string
		cfg          *config.Config
		body         string
		expectedCode int
		expectedType string
	}{
		{
			name:         "invalid json",
			cfg:          hicapConfig(upstream.URL, "sk-123"),
			body:         `{"model":`,
			expectedCode: http.StatusBadRequest,
			expectedType: "invalid_request_error",
		},
		{
			name:         "no messages",
			cfg:          hicapConfig(upstream.URL, "sk-123"),
			body:         `{"model":"x","messages":[]}`,
			expectedCode: http.StatusBadRequest,
			expectedType: "invalid_request_error",
		},
		{
			name:         "unknown provider",
			cfg:          hicapConfig(upstream.URL, "sk-123"),
			body:         `{"model":"missing,m","messages":[{"role":"user","content":"hi"}]}`,
			expectedCode: http.StatusBadRequest,
			expectedType: "invalid_request_error",
		},
		{
			name:         "missing credentials",
			cfg:          hicapConfig(upstream.URL, ""),
			body:         chatBody,
			expectedCode: http.StatusUnauthorized,
			expectedType: "authentication_error",
		},
		{
			name:         "upstream unreachable",
			cfg:          hicapConfig(deadURL, "sk-123"),
			body:         chatBody,
			expectedCode: http.StatusBadGateway,
			expectedType: "api_error",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newHandler(t, tc.cfg, nil, fixedTokens(10))

			rr := postChat(t, handler, tc.body)
			assert.Equal(t, tc.expectedCode, rr.Code, rr.Body.String())

			var envelope errorEnvelope
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
			assert.Equal(t, "error", envelope.Type)
			assert.Equal(t, tc.expectedType, envelope.Error.Type)
			assert.NotEmpty(t, envelope.RequestID)
		})
	}
}

type slowAuth struct {
	delay time.Duration
}

func (s *slowAuth) Name() string { return "slow" }

func (s *slowAuth) Auth(ctx context.Context, body any, provider *llm.Provider, tc *transformer.Context) (*transformer.Request, error) {
	time.Sleep(s.delay)
	return &transformer.Request{Body: body}, nil
}

func TestServeHTTP_Timeout(t *testing.T) {
	dispatched := false
	dispatcher := transformer.DispatcherFunc(func(ctx context.Context, out *transformer.Outbound) (*transformer.Response, error) {
		dispatched = true
		return &transformer.Response{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
	})

	registry := providers.NewRegistry()
	registry.Register(&providers.Entry{
		Provider: &llm.Provider{Name: "slow", BaseURL: "http://127.0.0.1:1", APIKey: "k"},
		Chain:    transformer.Chain{Auth: []transformer.Transformer{&slowAuth{delay: 500 * time.Millisecond}}},
	})

	cfgMgr := config.NewManager(t.TempDir())
	require.NoError(t, cfgMgr.Save(&config.Config{Router: config.RouterConfig{Default: "slow,m"}}))

	logger := testLogger()
	pipeline := transformer.NewPipeline(logger, transformer.WithTimeout(20*time.Millisecond))
	handler := NewProxyHandler(cfgMgr, registry, pipeline, dispatcher, logger, fixedTokens(1))

	rr := postChat(t, handler, chatBody)
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
	assert.False(t, dispatched, "nothing may be dispatched after a timeout")
}

func TestSelectModel_DynamicProviderSelection(t *testing.T) {
	handler := &ProxyHandler{logger: testLogger()}

	routerConfig := &config.RouterConfig{
		Default:     "default,claude-3-5-sonnet",
		LongContext: "longcontext,claude-3-opus",
		Think:       "think,claude-3-5-sonnet",
		WebSearch:   "websearch,claude-3-5-sonnet:online",
		Background:  "background,claude-3-5-haiku",
	}

	testCases := []struct {
		name          string
		req           llm.UnifiedChatRequest
		tokens        int
		expectedRoute string
	}{
		{
			name:          "explicit provider with comma",
			req:           llm.UnifiedChatRequest{Model: "openrouter,anthropic/claude-sonnet-4"},
			tokens:        1000,
			expectedRoute: "openrouter,anthropic/claude-sonnet-4",
		},
		{
			name:          "explicit provider overrides long context",
			req:           llm.UnifiedChatRequest{Model: "openrouter,anthropic/claude-sonnet-4"},
			tokens:        70000,
			expectedRoute: "openrouter,anthropic/claude-sonnet-4",
		},
		{
			name:          "long context",
			req:           llm.UnifiedChatRequest{Model: "claude-3-5-sonnet"},
			tokens:        70000,
			expectedRoute: "longcontext,claude-3-opus",
		},
		{
			name:          "background for haiku",
			req:           llm.UnifiedChatRequest{Model: "claude-3-5-haiku-20241022"},
			tokens:        100,
			expectedRoute: "background,claude-3-5-haiku",
		},
		{
			name:          "think when reasoning requested",
			req:           llm.UnifiedChatRequest{Model: "claude-3-5-sonnet", Reasoning: &llm.Reasoning{Effort: "high"}},
			tokens:        100,
			expectedRoute: "think,claude-3-5-sonnet",
		},
		{
			name: "web search tool",
			req: llm.UnifiedChatRequest{
				Model: "claude-3-5-sonnet",
				Tools: []llm.Tool{{Type: "function", Function: &llm.ToolFunction{Name: "web_search"}}},
			},
			tokens:        100,
			expectedRoute: "websearch,claude-3-5-sonnet:online",
		},
		{
			name:          "default",
			req:           llm.UnifiedChatRequest{Model: "claude-3-5-sonnet"},
			tokens:        100,
			expectedRoute: "default,claude-3-5-sonnet",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			route := handler.selectModel(&tc.req, tc.tokens, routerConfig)
			assert.Equal(t, tc.expectedRoute, route)
		})
	}
}

func TestClassifyError(t *testing.T) {
	testCases := []struct {
		err          error
		expectedCode int
	}{
		{&transformer.StageError{Phase: transformer.PhaseRequestIn, Transformer: "maxtoken", Err: &transformer.StageInputError{Transformer: "maxtoken"}}, http.StatusBadRequest},
		{&transformer.StageError{Phase: transformer.PhaseAuth, Transformer: "hicap", Err: &transformer.AuthResolutionError{Transformer: "hicap"}}, http.StatusUnauthorized},
		{&transformer.UpstreamDispatchError{Err: errors.New("refused")}, http.StatusBadGateway},
		{&transformer.ResponseNormalizationError{Transformer: "usage"}, http.StatusBadGateway},
		{&transformer.TimeoutError{Phase: transformer.PhaseAuth, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		code, _ := classifyError(tc.err)
		assert.Equal(t, tc.expectedCode, code, "error %v", tc.err)
	}
}

func TestServeHTTP_AnthropicBodyForwardedIntact(t *testing.T) {
	upstream, capture := newUpstream(t, http.StatusOK, `{"id":"r1"}`)
	handler := newHandler(t, hicapConfig(upstream.URL, "sk-123"), nil, fixedTokens(10))

	body := `{"model":"x","system":"You are X","thinking":{"type":"enabled","budget_tokens":1024},` +
		`"messages":[{"role":"user","content":"hi"}],` +
		`"tools":[{"name":"Read","input_schema":{"type":"object"}}]}`

	rr := postChat(t, handler, body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, "You are X", capture.body["system"])
	assert.Equal(t, map[string]any{"type": "enabled", "budget_tokens": float64(1024)}, capture.body["thinking"])
	assert.Equal(t, []any{map[string]any{"name": "Read", "input_schema": map[string]any{"type": "object"}}}, capture.body["tools"])
}

func TestServeHTTP_RequestTooLarge(t *testing.T) {
	var calls int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer upstream.Close()

	handler := newHandler(t, hicapConfig(upstream.URL, "sk-123"), nil, fixedTokens(1), WithMaxRequestBytes(int64(len(chatBody)-1)))

	rr := postChat(t, handler, chatBody)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code, rr.Body.String())

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	assert.Equal(t, "request_too_large", envelope.Error.Type)
	assert.Zero(t, calls, "oversized request must not reach upstream")
}
