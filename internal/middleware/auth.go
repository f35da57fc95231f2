package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hicap-oss/claude-code-router/internal/config"
)

var (
	errNoToken      = errors.New("no gateway key provided")
	errInvalidToken = errors.New("invalid gateway key")
)

type AuthMiddleware struct {
	config *config.Manager
	logger *slog.Logger
}

// NewAuthMiddleware checks the gateway key configured as APIKEY. Without one
// every request is let through.
func NewAuthMiddleware(config *config.Manager, logger *slog.Logger) func(http.Handler) http.Handler {
	am := &AuthMiddleware{
		config: config,
		logger: logger,
	}

	return am.middleware
}

func (am *AuthMiddleware) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := am.authenticate(r); err != nil {
			am.logger.Warn("Gateway authentication failed",
				"request_id", r.Header.Get(RequestIDHeader),
				"remote_addr", r.RemoteAddr,
				"error", err,
			)
			writeUnauthorized(w, r.Header.Get(RequestIDHeader))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (am *AuthMiddleware) authenticate(r *http.Request) error {
	key := am.config.Get().APIKey
	if key == "" {
		return nil
	}

	token := gatewayToken(r.Header)
	if token == "" {
		return errNoToken
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
		return errInvalidToken
	}

	return nil
}

// gatewayToken accepts the key the way Anthropic, OpenAI and api-key style
// clients send it.
func gatewayToken(h http.Header) string {
	if auth := h.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}

	for _, name := range []string{"X-API-Key", "Api-Key"} {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}

	return ""
}

func writeUnauthorized(w http.ResponseWriter, requestID string) {
	body, _ := json.Marshal(map[string]any{
		"type": "error",
		"error": map[string]string{
			"type":    "authentication_error",
			"message": "Gateway API key not authorized",
		},
		"request_id": requestID,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write(body)
}
