// Package api exposes the dispatch trigger endpoints and the engagement
// event intake over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clienthq/followup-engine/internal/config"
	"github.com/clienthq/followup-engine/internal/pkg/logger"
)

// Server hosts the HTTP surface.
type Server struct {
	cfg      config.ServerConfig
	router   *chi.Mux
	server   *http.Server
	handlers *Handlers
}

// NewServer builds the server and its routes.
func NewServer(cfg config.ServerConfig, handlers *Handlers) *Server {
	return &Server{
		cfg:      cfg,
		router:   SetupRoutes(handlers),
		handlers: handlers,
	}
}

// Start begins serving and blocks until the listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	logger.Info("http server listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }
