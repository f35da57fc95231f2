package middleware

import (
	"log/slog"
	"net/http"
	"strings"
)

// statsigPaths are the feature-flag and event endpoints Claude Code posts to
// once ANTHROPIC_BASE_URL points at the gateway.
var statsigPaths = []string{
	"/v1/initialize",
	"/v1/log_event",
	"/v1/rgstr",
	"/statsig",
	"/telemetry",
	"/analytics",
}

type StatsigBlockerMiddleware struct {
	logger *slog.Logger
}

// NewStatsigBlockerMiddleware answers telemetry calls locally so they never
// reach the proxy handler or an upstream provider.
func NewStatsigBlockerMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	sbm := &StatsigBlockerMiddleware{
		logger: logger,
	}

	return sbm.middleware
}

func (sbm *StatsigBlockerMiddleware) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isStatsigRequest(r.Host, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		sbm.logger.Debug("Blocked telemetry request", "host", r.Host, "path", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"success":true}`))
	})
}

func isStatsigRequest(host, path string) bool {
	if strings.Contains(host, "statsig.anthropic.com") {
		return true
	}

	for _, prefix := range statsigPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}
