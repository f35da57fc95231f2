package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"

	"github.com/hicap-oss/claude-code-router/internal/config"
	"github.com/hicap-oss/claude-code-router/internal/llm"
	"github.com/hicap-oss/claude-code-router/internal/providers"
	"github.com/hicap-oss/claude-code-router/internal/transformer"
)

const (
	longContextThreshold = 60000
	requestIDHeader      = "X-Request-ID"

	defaultMaxRequestBytes = 32 << 20
)

// TokenCounter returns the number of tokens in text.
type TokenCounter func(text string) int

type Option func(*ProxyHandler)

func WithTokenCounter(counter TokenCounter) Option {
	return func(h *ProxyHandler) {
		h.countTokens = counter
	}
}

// WithMaxRequestBytes caps the size of an inbound request body.
func WithMaxRequestBytes(n int64) Option {
	return func(h *ProxyHandler) {
		h.maxRequestBytes = n
	}
}

type ProxyHandler struct {
	config     *config.Manager
	registry   *providers.Registry
	pipeline   *transformer.Pipeline
	dispatcher transformer.Dispatcher
	logger     *slog.Logger

	countTokens     TokenCounter
	maxRequestBytes int64
}

func NewProxyHandler(config *config.Manager, registry *providers.Registry, pipeline *transformer.Pipeline, dispatcher transformer.Dispatcher, logger *slog.Logger, opts ...Option) *ProxyHandler {
	h := &ProxyHandler{
		config:     config,
		registry:   registry,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		logger:     logger,

		maxRequestBytes: defaultMaxRequestBytes,
	}
	h.countTokens = h.tiktokenCount

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.config.Get()

	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set(requestIDHeader, requestID)

	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "invalid_request_error", "only POST is supported", requestID)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), requestID)
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "failed to read request body: "+err.Error(), requestID)
		return
	}

	req, err := llm.DecodeChatRequest(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error(), requestID)
		return
	}

	inputTokens := h.countTokens(req.Text())
	route := h.selectModel(req, inputTokens, &cfg.Router)

	entry, model, err := h.registry.Resolve(route)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "provider not found: "+err.Error(), requestID)
		return
	}

	unified := *req
	if model != "" {
		unified.Model = model
	}

	tc := &transformer.Context{
		RequestID:   requestID,
		Provider:    entry.Provider.Name,
		Model:       unified.Model,
		InputTokens: inputTokens,
		Metadata: map[string]string{
			"path":       r.URL.Path,
			"user_agent": r.UserAgent(),
		},
	}

	h.logger.Info("Proxying request",
		"request_id", requestID,
		"provider", entry.Provider.Name,
		"model", unified.Model,
		"transformers", entry.Chain.Names(),
		"input_tokens", inputTokens,
	)

	resp, err := h.pipeline.Execute(r.Context(), entry.Chain, &unified, entry.Provider, tc, h.dispatcher)
	if err != nil {
		status, errType := classifyError(err)
		h.logger.Error("Pipeline failed",
			"request_id", requestID,
			"provider", entry.Provider.Name,
			"status", status,
			"error", err,
		)
		h.writeError(w, status, errType, err.Error(), requestID)
		return
	}

	h.copyHeaders(w, resp.Header)
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		h.logger.Error("Failed to write response", "request_id", requestID, "error", err)
	}

	h.logResponseTokens(resp.Body, resp.StatusCode, inputTokens, requestID)
}

// selectModel picks the route ("provider,model") for the request.
func (h *ProxyHandler) selectModel(req *llm.UnifiedChatRequest, tokens int, routerConfig *config.RouterConfig) string {
	model := strings.TrimSpace(req.Model)

	switch {
	case strings.Contains(model, ","):
		return model
	case tokens > longContextThreshold && routerConfig.LongContext != "":
		return routerConfig.LongContext
	case strings.HasPrefix(model, "claude-3-5-haiku") && routerConfig.Background != "":
		return routerConfig.Background
	case req.WantsReasoning() && routerConfig.Think != "":
		return routerConfig.Think
	case hasWebSearchTool(req) && routerConfig.WebSearch != "":
		return routerConfig.WebSearch
	case routerConfig.Default != "":
		return routerConfig.Default
	default:
		return model
	}
}

func hasWebSearchTool(req *llm.UnifiedChatRequest) bool {
	for _, tool := range req.Tools {
		if strings.HasPrefix(tool.Type, "web_search") || tool.ToolName() == "web_search" {
			return true
		}
	}
	return false
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

func (h *ProxyHandler) tiktokenCount(text string) int {
	encodingOnce.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding("cl100k_base")
	})
	if encodingErr != nil {
		h.logger.Warn("Failed to get tiktoken encoding, estimating tokens", "error", encodingErr)
		return len(text) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}

// classifyError maps pipeline errors to a gateway status and error type.
func classifyError(err error) (int, string) {
	switch {
	case transformer.IsTimeoutError(err):
		return http.StatusGatewayTimeout, "timeout_error"
	case transformer.IsAuthResolutionError(err):
		return http.StatusUnauthorized, "authentication_error"
	case transformer.IsStageInputError(err):
		return http.StatusBadRequest, "invalid_request_error"
	case transformer.IsUpstreamDispatchError(err):
		return http.StatusBadGateway, "api_error"
	case transformer.IsResponseNormalizationError(err):
		return http.StatusBadGateway, "api_error"
	default:
		return http.StatusInternalServerError, "api_error"
	}
}

type errorEnvelope struct {
	Type      string     `json:"type"`
	Error     errorInner `json:"error"`
	RequestID string     `json:"request_id,omitempty"`
}

type errorInner struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (h *ProxyHandler) writeError(w http.ResponseWriter, code int, errType, message, requestID string) {
	h.logger.Error("HTTP Error", "code", code, "message", message, "request_id", requestID)

	body, err := json.Marshal(errorEnvelope{
		Type:      "error",
		Error:     errorInner{Type: errType, Message: message},
		RequestID: requestID,
	})
	if err != nil {
		body = []byte(`{"type":"error","error":{"type":"api_error","message":"failed to marshal error"}}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func (h *ProxyHandler) copyHeaders(w http.ResponseWriter, header http.Header) {
	for key, values := range header {
		// Skip compression headers since we handle decompression
		if key == "Content-Encoding" || key == "Content-Length" {
			continue
		}
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
}

func (h *ProxyHandler) logResponseTokens(respBody []byte, statusCode int, inputTokens int, requestID string) {
	logFields := []any{
		"request_id", requestID,
		"status", statusCode,
		"input_tokens", inputTokens,
	}

	var response map[string]any
	if err := json.Unmarshal(respBody, &response); err == nil {
		if usage, ok := response["usage"].(map[string]any); ok {
			if outputTokens, ok := usage["output_tokens"]; ok {
				logFields = append(logFields, "output_tokens", outputTokens)
			} else if completionTokens, ok := usage["completion_tokens"]; ok {
				logFields = append(logFields, "output_tokens", completionTokens)
			}
		}
	}

	if statusCode >= http.StatusBadRequest {
		h.logger.Error("Upstream error response", logFields...)
	} else {
		h.logger.Info("Successful response", logFields...)
	}
}
