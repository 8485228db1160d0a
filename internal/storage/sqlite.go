package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Tarrun1506/starrag-bot/internal/models"
)

// SQLiteStore implements Store using SQLite. Chunk embeddings are stored as
// little-endian float32 BLOBs alongside the chunk text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

	CREATE TABLE IF NOT EXISTS document_chunks (
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		source TEXT NOT NULL,
		embedding BLOB NOT NULL,
		PRIMARY KEY (document_id, chunk_index),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		query TEXT NOT NULL,
		response TEXT NOT NULL,
		model TEXT NOT NULL,
		sources TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_conversation_id ON conversations(conversation_id);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveDocument inserts a document and all of its chunks in one transaction.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *models.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, filename, content, created_at) VALUES (?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.Content, doc.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (document_id, chunk_index, text, source, embedding)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, ch := range doc.Chunks {
		if _, err := stmt.ExecContext(ctx, doc.ID, i, ch.Text, ch.Metadata.Source, encodeEmbedding(ch.Embedding)); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// FindAllDocuments returns every document with its chunks and embeddings,
// chunks ordered by their original index, documents by creation time.
func (s *SQLiteStore) FindAllDocuments(ctx context.Context) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, content, created_at FROM documents ORDER BY created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.Content, &doc.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, doc := range docs {
		chunks, err := s.chunksForDocument(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		doc.Chunks = chunks
	}
	return docs, nil
}

func (s *SQLiteStore) chunksForDocument(ctx context.Context, docID string) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT text, source, embedding FROM document_chunks
		 WHERE document_id = ? ORDER BY chunk_index`, docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var ch models.Chunk
		var blob []byte
		if err := rows.Scan(&ch.Text, &ch.Metadata.Source, &blob); err != nil {
			return nil, err
		}
		ch.Embedding = decodeEmbedding(blob)
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// ListDocumentInfo returns document metadata, newest first.
func (s *SQLiteStore) ListDocumentInfo(ctx context.Context) ([]*models.DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, created_at FROM documents ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []*models.DocumentInfo
	for rows.Next() {
		var info models.DocumentInfo
		if err := rows.Scan(&info.ID, &info.Filename, &info.CreatedAt); err != nil {
			return nil, err
		}
		infos = append(infos, &info)
	}
	return infos, rows.Err()
}

// DeleteDocument removes a document and its chunks, returning the number of
// documents removed.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, id); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountChunks returns the total number of persisted chunks.
func (s *SQLiteStore) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count)
	return count, err
}

// SaveConversationTurn appends a turn.
func (s *SQLiteStore) SaveConversationTurn(ctx context.Context, turn *models.ConversationTurn) error {
	sourcesJSON, err := json.Marshal(turn.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (conversation_id, query, response, model, sources, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ConversationID, turn.Query, turn.Response, turn.Model, string(sourcesJSON), turn.Timestamp,
	)
	return err
}

// ListConversations returns one summary per conversation, ordered by first
// timestamp descending.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]*models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, query, model, MIN(timestamp) AS first_ts
		 FROM conversations
		 GROUP BY conversation_id
		 ORDER BY first_ts DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*models.ConversationSummary
	for rows.Next() {
		var sum models.ConversationSummary
		if err := rows.Scan(&sum.ConversationID, &sum.FirstQuery, &sum.Model, &sum.FirstTimestamp); err != nil {
			return nil, err
		}
		summaries = append(summaries, &sum)
	}
	return summaries, rows.Err()
}

// GetConversation returns all turns for a conversation ordered by timestamp.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) ([]*models.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, query, response, model, sources, timestamp
		 FROM conversations WHERE conversation_id = ? ORDER BY timestamp`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []*models.ConversationTurn
	for rows.Next() {
		var turn models.ConversationTurn
		var sourcesJSON string
		if err := rows.Scan(&turn.ConversationID, &turn.Query, &turn.Response, &turn.Model, &sourcesJSON, &turn.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sourcesJSON), &turn.Sources); err != nil {
			return nil, fmt.Errorf("unmarshal sources: %w", err)
		}
		turns = append(turns, &turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	return turns, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// encodeEmbedding packs a vector as little-endian float32 bytes.
func encodeEmbedding(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(v))
	}
	return out
}

// decodeEmbedding is the inverse of encodeEmbedding.
func decodeEmbedding(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return out
}
