package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultShutdownTimeout bounds graceful shutdown
const DefaultShutdownTimeout = 5 * time.Second

// Server exposes relay health and status over HTTP
type Server struct {
	http     *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// NewRouter builds the status routes
func NewRouter(source StatusSource, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)
	r.Use(LoggingMiddleware(logger))
	r.Use(SecurityMiddleware)

	r.Get("/health", HealthCheck)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", StatusHandler(source))
	})

	return r
}

// New binds addr and returns a server that is not yet serving
func New(addr string, source StatusSource, logger *slog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return &Server{
		http: &http.Server{
			Handler:           NewRouter(source, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
		logger:   logger,
	}, nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start serves in the background
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting status server", "addr", s.Addr())
		if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server failed", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting at most timeout for open requests
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.http.Shutdown(ctx)
	// never served when Start was not called
	s.listener.Close()
	if err != nil {
		return fmt.Errorf("status server forced to shutdown: %w", err)
	}
	s.logger.Info("Status server shut down")
	return nil
}
