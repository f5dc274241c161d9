// Package api serves the validator's read-only HTTP surface: health, round state,
// scores, commit history, ledger pool health and Prometheus metrics.
package api

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Server provides HTTP endpoints
type Server struct {
	logger   zerolog.Logger
	server   *http.Server
	status   StatusProvider
	commits  CommitHistory
	pool     PoolStatsProvider
	gatherer prometheus.Gatherer
}

// Options are the optional data sources of the server.
type Options struct {
	Commits  CommitHistory
	Pool     PoolStatsProvider
	Gatherer prometheus.Gatherer
}

// NewServer creates a new Server instance
func NewServer(logger zerolog.Logger, port int, status StatusProvider, opts Options) *Server {
	s := &Server{
		logger:   logger.With().Str("component", "api").Logger(),
		status:   status,
		commits:  opts.Commits,
		pool:     opts.Pool,
		gatherer: opts.Gatherer,
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start binds the port and serves in the background. A bind failure is returned
// to the caller instead of surfacing later in the serve goroutine.
func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("query server is nil")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to address %s: %w", s.server.Addr, err)
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Query server started")

	go func() {
		err := s.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.Info().Msg("Query server closed gracefully")
			return
		}
		s.logger.Error().Err(err).Msg("Query server error")
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
