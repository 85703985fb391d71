// Package core provides the HTTP chassis for the storefront API: the chi
// router, the global middleware chain, response helpers and the admin gate.
// Domain handlers register themselves through route registrars so core never
// imports handler packages.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"valor/internal/config"
)

// Server owns the router and the cross-cutting dependencies shared by every
// request.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Validator    *Validator
	Metrics      MetricsCollector
	Admin        AdminVerifier
	HealthProbes []HealthProbe

	// PublicRoutes are mounted under /api. AdminPublicRoutes and AdminRoutes
	// share /api/admin; only AdminRoutes sit behind RequireAdmin.
	PublicRoutes      []func(chi.Router)
	AdminPublicRoutes []func(chi.Router)
	AdminRoutes       []func(chi.Router)

	closers []func() error
	router  *chi.Mux
}

func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers a resource to release in Shutdown, in reverse order.
func (s *Server) OnShutdown(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Shutdown releases registered resources. Every closer runs; the first
// error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.Logger.ErrorContext(ctx, "error releasing resource", "error", err)
			if first == nil {
				first = err
			}
		}
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return first
}
