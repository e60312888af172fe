// Package server provides the HTTP service for readwise-mcp.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/CaseyRo/readwise-mcp-http-server/internal/config"
	"github.com/CaseyRo/readwise-mcp-http-server/internal/mcp"
)

const (
	// ReadHeaderTimeout bounds how long a client may take to send headers.
	ReadHeaderTimeout = 10 * time.Second

	// MaxRequestBody caps incoming request bodies. Tool calls are small;
	// anything larger is not a legitimate request.
	MaxRequestBody = 1 << 20
)

// Service is the HTTP service hosting the MCP endpoints.
type Service struct {
	version string
	config  *config.Config
	mcp     *mcp.Handler
	router  *chi.Mux
	server  *http.Server
}

// NewService creates the HTTP service around an MCP transport handler.
func NewService(cfg *config.Config, handler *mcp.Handler, version string) *Service {
	svc := &Service{
		version: version,
		config:  cfg,
		mcp:     handler,
		router:  chi.NewRouter(),
	}

	svc.setupMiddleware()
	svc.setupRoutes()

	return svc
}

// setupMiddleware configures HTTP middleware.
func (s *Service) setupMiddleware() {
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(MaxBodySize(MaxRequestBody))
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	// MCP transport: single-envelope, streaming, and static info.
	s.router.Handle("/mcp", http.HandlerFunc(s.mcp.ServeMCP))
	s.router.Handle("/mcp/stream", http.HandlerFunc(s.mcp.ServeStream))
	s.router.Get("/mcp/info", s.mcp.ServeInfo)
}

// Router returns the configured router, mainly for tests.
func (s *Service) Router() http.Handler {
	return s.router
}

// Start begins serving HTTP requests. It blocks until the listener fails or
// Shutdown is called.
func (s *Service) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	log.Info().
		Int("port", s.config.Port).
		Str("version", s.version).
		Str("baseUrl", s.config.BaseURL).
		Msg("MCP HTTP server started")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the service.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	log.Info().Msg("MCP HTTP server shutdown complete")
	return nil
}
