package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hicap-oss/claude-code-router/internal/config"
	"github.com/hicap-oss/claude-code-router/internal/dispatch"
	"github.com/hicap-oss/claude-code-router/internal/handlers"
	"github.com/hicap-oss/claude-code-router/internal/middleware"
	"github.com/hicap-oss/claude-code-router/internal/providers"
	"github.com/hicap-oss/claude-code-router/internal/transformer"
)

type Server struct {
	config     *config.Manager
	registry   *providers.Registry
	pipeline   *transformer.Pipeline
	dispatcher transformer.Dispatcher
	logger     *slog.Logger
	server     *http.Server

	handlerOpts []handlers.Option
}

// New builds the provider registry and pipeline from the current configuration.
func New(configManager *config.Manager, transformers *transformer.Registry, logger *slog.Logger, userAgent string, opts ...handlers.Option) (*Server, error) {
	cfg := configManager.Get()

	registry, err := providers.NewFromConfig(cfg, transformers)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}

	return &Server{
		config:     configManager,
		registry:   registry,
		pipeline:   transformer.NewPipeline(logger, transformer.WithTimeout(cfg.Timeout())),
		dispatcher: dispatch.New(dispatch.WithLogger(logger), dispatch.WithUserAgent(userAgent)),
		logger:     logger,

		handlerOpts: opts,
	}, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) Start() error {
	cfg := s.config.Get()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	// Setup routes
	mux := s.setupRoutes()

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	s.logger.Info("Starting server", "address", addr, "providers", s.registry.List())

	// Start server in goroutine
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	s.logger.Info("Server is shutting down...")

	// Create a deadline to wait for.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("Server exited")
	return nil
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Create handlers
	proxyHandler := handlers.NewProxyHandler(s.config, s.registry, s.pipeline, s.dispatcher, s.logger, s.handlerOpts...)
	healthHandler := handlers.NewHealthHandler(s.registry, s.logger)

	// Setup middleware chains
	middlewareSet := middleware.NewMiddlewareSet(s.config, s.logger)

	// Apply middleware chains to routes
	mux.Handle("/health", middlewareSet.HealthChain().Handler(healthHandler))
	mux.Handle("/", middlewareSet.DefaultChain().Handler(proxyHandler))

	return mux
}
