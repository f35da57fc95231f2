package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hicap-oss/claude-code-router/internal/config"
)

// Middleware represents a middleware function
type Middleware func(http.Handler) http.Handler

// Chain represents a middleware chain
type Chain struct {
	middlewares []Middleware
}

// New creates a new middleware chain
func New(middlewares ...Middleware) Chain {
	return Chain{middlewares: middlewares}
}

// Then adds more middleware to the chain
func (c Chain) Then(middlewares ...Middleware) Chain {
	return Chain{middlewares: append(c.middlewares, middlewares...)}
}

// Handler applies all middleware in the chain to the given handler
func (c Chain) Handler(handler http.Handler) http.Handler {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		handler = c.middlewares[i](handler)
	}

	return handler
}

// MiddlewareSet contains all configured middleware for easy composition
type MiddlewareSet struct {
	Recover        Middleware
	StatsigBlocker Middleware
	MetricsBlocker Middleware
	Logging        Middleware
	Auth           Middleware
}

// NewMiddlewareSet creates a complete set of middleware with proper dependencies
func NewMiddlewareSet(config *config.Manager, logger *slog.Logger) MiddlewareSet {
	return MiddlewareSet{
		Recover:        NewRecoverMiddleware(logger),
		StatsigBlocker: NewStatsigBlockerMiddleware(logger),
		MetricsBlocker: NewMetricsBlockerMiddleware(logger),
		Logging:        NewLoggingMiddleware(logger),
		Auth:           NewAuthMiddleware(config, logger),
	}
}

// DefaultChain returns the standard middleware chain for proxied endpoints
func (ms MiddlewareSet) DefaultChain() Chain {
	return New(
		ms.Recover,
		ms.StatsigBlocker, // Answer telemetry before logging or auth
		ms.MetricsBlocker,
		ms.Logging,
		ms.Auth, // Authenticate last
	)
}

// HealthChain returns the middleware chain for health endpoints (no auth)
func (ms MiddlewareSet) HealthChain() Chain {
	return New(
		ms.Recover,
		ms.StatsigBlocker,
		ms.MetricsBlocker,
		ms.Logging,
	)
}
