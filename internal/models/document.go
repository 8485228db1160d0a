// Package models defines core data structures for documents, chunks, and conversations.
package models

import "time"

// Document represents an ingested document with its chunks and embeddings.
// Documents are created once on successful ingestion and never mutated;
// deletion removes the document as a whole unit.
type Document struct {
	ID        string    `json:"id" db:"id"`
	Filename  string    `json:"filename" db:"filename"`
	Content   string    `json:"content" db:"content"`
	Chunks    []Chunk   `json:"chunks"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Chunk is a bounded substring of a document, the atomic unit of retrieval.
type Chunk struct {
	Text      string        `json:"text" db:"text"`
	Metadata  ChunkMetadata `json:"metadata"`
	Embedding []float32     `json:"-" db:"-"`
}

// ChunkMetadata carries the source filename of a chunk.
type ChunkMetadata struct {
	Source string `json:"source" db:"source"`
}

// DocumentInfo is the metadata-only projection of a document, used for listings.
type DocumentInfo struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

// ChunkRecord is the flat in-memory projection of a chunk held by the
// retrieval pipeline. Its position in the pipeline's chunk store equals the
// position of its embedding in the vector index.
type ChunkRecord struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
	DocID    string        `json:"doc_id"`
}
