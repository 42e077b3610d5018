package api

import (
	"context"
	"fmt"
	"net/http"

	logging "github.com/origin-gov/governance-listener/internal/logger"
	"github.com/origin-gov/governance-listener/internal/store"
	"github.com/origin-gov/governance-listener/pkg/config"
)

// Server exposes the indexed state over a small read-only HTTP API.
type Server struct {
	config *config.APIConfig
	store  *store.Store
	logger *logging.Logger
	server *http.Server
}

func NewServer(cfg *config.APIConfig, s *store.Store, logger *logging.Logger) *Server {
	return &Server{
		config: cfg,
		store:  s,
		logger: logger,
	}
}

// Handler builds the routing table. Split out from Start so tests can
// drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/lockups", s.handleLockups)
	mux.HandleFunc("GET /api/v1/proposals", s.handleProposals)
	mux.HandleFunc("GET /api/v1/voters", s.handleVoters)
	mux.HandleFunc("GET /health", s.handleHealth)

	return chain(mux, s.recoveryMiddleware, s.corsMiddleware, s.loggingMiddleware)
}

// Start starts the API server. Non-blocking; errors after startup are
// logged, not returned.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}

	s.server = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout.Duration,
		WriteTimeout: s.config.WriteTimeout.Duration,
		IdleTimeout:  s.config.IdleTimeout.Duration,
	}

	s.logger.Infof("starting API server on %s", s.config.ListenAddress)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("API server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts the API server down, draining in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}

	return nil
}
