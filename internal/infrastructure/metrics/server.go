// Package metrics serves the Prometheus scrape endpoint alongside health and status
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"livetrader/internal/core"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server handles Prometheus metrics export
type Server struct {
	port   int
	logger core.ILogger
	health http.Handler
	status func() interface{}
	srv    *http.Server
}

// Option customizes the served routes
type Option func(*Server)

// WithHealth mounts h at /healthz
func WithHealth(h http.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithStatus serves the JSON encoding of fn() at /status
func WithStatus(fn func() interface{}) Option {
	return func(s *Server) { s.status = fn }
}

// NewServer creates a new metrics server
func NewServer(port int, logger core.ILogger, opts ...Option) *Server {
	s := &Server{
		port:   port,
		logger: logger.WithField("component", "metrics_server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if s.health != nil {
		mux.Handle("/healthz", s.health)
	}
	if s.status != nil {
		mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(s.status()); err != nil {
				s.logger.Warn("Failed to encode status", "error", err)
			}
		})
	}
	return mux
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting Prometheus metrics server", "port", s.port)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.logger.Error("Metrics server failed", "error", err)
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Stopping metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
