// Package storage defines persistence for documents and conversations.
package storage

import (
	"context"
	"errors"

	"github.com/Tarrun1506/starrag-bot/internal/models"
)

// ErrNotFound is returned when a requested document or conversation does not exist.
var ErrNotFound = errors.New("not found")

// DocumentStore persists documents with their chunks and embeddings.
// It is the durable source of truth the in-memory index is rebuilt from.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *models.Document) error
	// FindAllDocuments returns every document with chunks and embeddings loaded.
	FindAllDocuments(ctx context.Context) ([]*models.Document, error)
	// ListDocumentInfo returns the metadata-only projection, newest first.
	ListDocumentInfo(ctx context.Context) ([]*models.DocumentInfo, error)
	// DeleteDocument removes a document and its chunks, returning the number
	// of documents removed (0 when absent).
	DeleteDocument(ctx context.Context, id string) (int64, error)
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
}

// ConversationStore persists query/response turns, append-only.
type ConversationStore interface {
	SaveConversationTurn(ctx context.Context, turn *models.ConversationTurn) error
	// ListConversations groups turns by conversation, ordered by first
	// timestamp descending.
	ListConversations(ctx context.Context) ([]*models.ConversationSummary, error)
	// GetConversation returns a conversation's turns ordered by timestamp.
	// Returns ErrNotFound when no turns exist for the id.
	GetConversation(ctx context.Context, conversationID string) ([]*models.ConversationTurn, error)
}

// Store combines document and conversation persistence.
type Store interface {
	DocumentStore
	ConversationStore
	Close() error
}
