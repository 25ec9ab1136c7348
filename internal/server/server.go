// Package server provides the HTTP API for Omoide.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/omoide/internal/config"
	"github.com/hyperjump/omoide/internal/generator"
	"github.com/hyperjump/omoide/internal/memory"
	"github.com/hyperjump/omoide/internal/session"
)

// Server is the HTTP server for the Omoide API.
type Server struct {
	memory    *memory.Store
	sessions  *session.Store
	generator generator.Generator
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	mem *memory.Store,
	sessions *session.Store,
	gen generator.Generator,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		memory:    mem,
		sessions:  sessions,
		generator: gen,
		config:    cfg,
		logger:    logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Post("/api/chat", s.handleChat)
	r.Get("/api/history/{sessionID}", s.handleHistory)
	r.Get("/api/conversations/{sessionID}", s.handleConversations)
	r.Get("/api/sessions", s.handleSessions)
	r.Get("/api/stats", s.handleStats)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
