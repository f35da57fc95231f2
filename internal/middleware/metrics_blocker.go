package middleware

import (
	"log/slog"
	"net/http"
	"strings"
)

var metricsPaths = []string{
	"/api/claude_code/metrics",
	"/claude_code/metrics",
}

type MetricsBlockerMiddleware struct {
	logger *slog.Logger
}

// NewMetricsBlockerMiddleware accepts Claude Code usage metrics with an empty
// result. The gateway is the client's only API host, so paths match on any host.
func NewMetricsBlockerMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	mbm := &MetricsBlockerMiddleware{
		logger: logger,
	}

	return mbm.middleware
}

func (mbm *MetricsBlockerMiddleware) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMetricsRequest(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		mbm.logger.Debug("Blocked metrics request", "path", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"accepted_count":0,"rejected_count":0}`))
	})
}

func isMetricsRequest(path string) bool {
	for _, prefix := range metricsPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
