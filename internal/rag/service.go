// Package rag exposes the retrieval-augmented generation service surface
// consumed by the HTTP layer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tarrun1506/starrag-bot/internal/models"
	"github.com/Tarrun1506/starrag-bot/internal/pipeline"
	"github.com/Tarrun1506/starrag-bot/internal/storage"
)

// ErrModelNotAllowed is returned when a query names a model outside the
// allow-list. The check happens before any network call.
var ErrModelNotAllowed = errors.New("model not allowed")

// noContextResponse is returned for queries against an empty corpus.
const noContextResponse = "I have no relevant information. Please upload documents first."

// Generator produces a grounded answer from retrieved chunks. Failure modes
// are returned as user-facing strings, not errors.
type Generator interface {
	Generate(ctx context.Context, query string, chunks []models.RetrievedChunk, model string) string
	IsAllowed(model string) bool
	AllowedModels() []string
	AvailableModels(ctx context.Context) (available, reported []string, err error)
}

// Config holds service-level settings.
type Config struct {
	// RetrievalK is how many chunks are retrieved per query.
	RetrievalK int
	// DefaultModel is used when a query names no model.
	DefaultModel string
}

// Service orchestrates the retrieval pipeline, answer generation, and
// conversation persistence.
type Service struct {
	pipeline  *pipeline.Pipeline
	generator Generator
	store     storage.Store // optional; nil degrades conversation persistence
	cfg       Config
	logger    *zap.Logger
}

// NewService creates a service. store may be nil for session-only operation.
func NewService(p *pipeline.Pipeline, g Generator, store storage.Store, cfg Config, logger *zap.Logger) *Service {
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = 5
	}
	return &Service{pipeline: p, generator: g, store: store, cfg: cfg, logger: logger}
}

// Upload ingests an uploaded file and returns the new document id.
func (s *Service) Upload(ctx context.Context, content []byte, filename string) (string, error) {
	return s.pipeline.Ingest(ctx, content, filename)
}

// ListDocuments returns metadata for all persisted documents, newest first.
// Without a store the listing is empty rather than an error.
func (s *Service) ListDocuments(ctx context.Context) ([]*models.DocumentInfo, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListDocumentInfo(ctx)
}

// DeleteDocument removes a document and rebuilds the live index.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	return s.pipeline.Delete(ctx, id)
}

// Query answers a question with retrieved context. The model must be on the
// allow-list; an empty corpus yields a canned response with no sources. Each
// answered query is appended to the conversation store (best effort).
func (s *Service) Query(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error) {
	if err := req.Validate(s.cfg.DefaultModel); err != nil {
		return nil, err
	}
	if !s.generator.IsAllowed(req.Model) {
		return nil, fmt.Errorf("model %s: %w", req.Model, ErrModelNotAllowed)
	}

	chunks, err := s.pipeline.Retrieve(ctx, req.Query, s.cfg.RetrievalK)
	if err != nil {
		return nil, err
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}
	if len(chunks) == 0 {
		return &models.QueryResponse{
			Response:       noContextResponse,
			Sources:        []string{},
			ConversationID: conversationID,
		}, nil
	}

	response := s.generator.Generate(ctx, req.Query, chunks, req.Model)
	sources := distinctSources(chunks)

	turn := &models.ConversationTurn{
		ConversationID: conversationID,
		Query:          req.Query,
		Response:       response,
		Model:          req.Model,
		Sources:        sources,
	}
	if s.store != nil {
		if err := s.store.SaveConversationTurn(ctx, turn); err != nil {
			s.logger.Warn("conversation turn not persisted", zap.Error(err))
		}
	}

	return &models.QueryResponse{
		Response:       response,
		Sources:        sources,
		ConversationID: conversationID,
	}, nil
}

// ListConversations returns conversation summaries, newest first.
func (s *Service) ListConversations(ctx context.Context) ([]*models.ConversationSummary, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListConversations(ctx)
}

// GetConversation returns a conversation's turns in order.
func (s *Service) GetConversation(ctx context.Context, id string) ([]*models.ConversationTurn, error) {
	if s.store == nil {
		return nil, fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}
	return s.store.GetConversation(ctx, id)
}

// Status reports corpus and index counters.
func (s *Service) Status(ctx context.Context) (map[string]any, error) {
	status := map[string]any{
		"vector_index_size": s.pipeline.Size(),
		"dimensions":        s.pipeline.Dimensions(),
		"persistent":        s.store != nil,
	}
	if s.store != nil {
		docs, err := s.store.CountDocuments(ctx)
		if err != nil {
			return nil, err
		}
		chunks, err := s.store.CountChunks(ctx)
		if err != nil {
			return nil, err
		}
		status["documents"] = docs
		status["chunks"] = chunks
	}
	return status, nil
}

// ModelGenerator returns the configured generator (used by the HTTP models endpoint).
func (s *Service) ModelGenerator() Generator {
	return s.generator
}

// distinctSources returns the unique source filenames of chunks, sorted.
func distinctSources(chunks []models.RetrievedChunk) []string {
	seen := make(map[string]bool, len(chunks))
	var sources []string
	for _, ch := range chunks {
		src := ch.Metadata.Source
		if src == "" {
			src = "Unknown"
		}
		if !seen[src] {
			seen[src] = true
			sources = append(sources, src)
		}
	}
	sort.Strings(sources)
	return sources
}
