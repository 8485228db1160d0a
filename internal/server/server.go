// Package server provides the HTTP API boundary over the RAG service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Tarrun1506/starrag-bot/internal/config"
	"github.com/Tarrun1506/starrag-bot/internal/rag"
)

// Server is the HTTP server for the StarRAG API.
type Server struct {
	service *rag.Service
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(service *rag.Service, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{service: service, config: cfg, logger: logger}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(310 * time.Second))

	r.Post("/api/upload", s.handleUpload)
	r.Get("/api/documents", s.handleListDocuments)
	r.Delete("/api/documents/{id}", s.handleDeleteDocument)
	r.Get("/api/models", s.handleListModels)
	r.Post("/api/query", s.handleQuery)
	r.Get("/api/conversations", s.handleListConversations)
	r.Get("/api/conversations/{id}", s.handleGetConversation)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
