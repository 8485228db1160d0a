package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tarrun1506/starrag-bot/internal/embedding"
	"github.com/Tarrun1506/starrag-bot/internal/extract"
	"github.com/Tarrun1506/starrag-bot/internal/models"
	"github.com/Tarrun1506/starrag-bot/internal/storage"
	"github.com/Tarrun1506/starrag-bot/internal/vector"
)

// ErrEmptyDocument is returned when a supported file yields no text.
var ErrEmptyDocument = errors.New("document contains no text")

// ErrStoreUnavailable is returned for operations that require the durable
// document store when none is configured.
var ErrStoreUnavailable = errors.New("document store unavailable")

// Pipeline owns the vector index and its positionally aligned chunk store.
// Position i in the chunk store always refers to the i-th vector in the index;
// every mutation preserves that coupling or fails before touching either side.
// One RWMutex serializes mutations against reads: queries take the read lock,
// ingest/rebuild take the write lock. Embedding and storage calls happen
// outside the lock.
type Pipeline struct {
	mu     sync.RWMutex
	index  *vector.FlatIndex
	chunks []models.ChunkRecord

	chunker   *Chunker
	extractor *extract.Extractor
	embedder  embedding.Embedder
	store     storage.DocumentStore // optional; nil degrades to session-only
	logger    *zap.Logger
}

// New creates a pipeline. store may be nil, in which case ingested documents
// live only for the session and deletion is unavailable.
func New(
	chunker *Chunker,
	extractor *extract.Extractor,
	embedder embedding.Embedder,
	store storage.DocumentStore,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		index:     vector.NewFlatIndex(),
		chunker:   chunker,
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		logger:    logger,
	}
}

// Ingest processes an uploaded file: extension check, text extraction,
// chunking, embedding, durable save, then index append. Persistence failure is
// non-fatal (logged; the document still serves queries for the session), but
// any earlier failure aborts with no state committed. Re-ingesting identical
// bytes creates a new document with a new ID.
func (p *Pipeline) Ingest(ctx context.Context, content []byte, filename string) (string, error) {
	if !p.extractor.Supported(filename) {
		return "", fmt.Errorf("%w: %s", extract.ErrUnsupportedFileType, filename)
	}
	text, err := p.extractor.Extract(content, filename)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%s: %w", filename, ErrEmptyDocument)
	}

	chunks := p.chunker.Split(text, filename)
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return "", fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	doc := &models.Document{
		ID:        uuid.New().String(),
		Filename:  filename,
		Content:   text,
		Chunks:    chunks,
		CreatedAt: time.Now().UTC(),
	}
	if p.store != nil {
		if err := p.store.SaveDocument(ctx, doc); err != nil {
			p.logger.Warn("document not persisted; serving session-only",
				zap.String("doc_id", doc.ID),
				zap.String("filename", filename),
				zap.Error(err))
		}
	} else {
		p.logger.Warn("document store not configured; document not persisted",
			zap.String("doc_id", doc.ID),
			zap.String("filename", filename))
	}

	records := make([]models.ChunkRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = models.ChunkRecord{Text: ch.Text, Metadata: ch.Metadata, DocID: doc.ID}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Index first: a failed Add leaves both sides untouched.
	if err := p.index.Add(embeddings); err != nil {
		return "", fmt.Errorf("index vectors: %w", err)
	}
	p.chunks = append(p.chunks, records...)
	p.mustAligned()

	p.logger.Info("document ingested",
		zap.String("doc_id", doc.ID),
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)))
	return doc.ID, nil
}

// Retrieve embeds the query and returns the k nearest chunks, ascending by L2
// distance. An empty index yields an empty result, not an error.
func (p *Pipeline) Retrieve(ctx context.Context, query string, k int) ([]models.RetrievedChunk, error) {
	if p.Size() == 0 {
		return nil, nil
	}
	queryVec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	hits, err := p.index.Search(queryVec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	results := make([]models.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		if hit.Position >= len(p.chunks) {
			return nil, fmt.Errorf("index position %d beyond chunk store size %d", hit.Position, len(p.chunks))
		}
		rec := p.chunks[hit.Position]
		results = append(results, models.RetrievedChunk{
			Text:     rec.Text,
			Metadata: rec.Metadata,
			Score:    hit.Distance,
		})
	}
	return results, nil
}

// Delete removes a document from the durable store and fully rebuilds the
// index and chunk store from the remaining documents' persisted embeddings.
// There is no incremental delete: positional coupling makes in-place removal
// unsafe, so reconstruction from the source of truth is the only mutation.
func (p *Pipeline) Delete(ctx context.Context, docID string) error {
	if p.store == nil {
		return ErrStoreUnavailable
	}
	removed, err := p.store.DeleteDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("document %s: %w", docID, storage.ErrNotFound)
	}

	docs, err := p.store.FindAllDocuments(ctx)
	if err != nil {
		return fmt.Errorf("reload documents for rebuild: %w", err)
	}
	if err := p.rebuildFrom(docs); err != nil {
		return err
	}
	p.logger.Info("document deleted, index rebuilt",
		zap.String("doc_id", docID),
		zap.Int("remaining_chunks", p.Size()))
	return nil
}

// LoadFromStore rebuilds the index and chunk store from all persisted
// documents. Called at startup; a nil store is a no-op.
func (p *Pipeline) LoadFromStore(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	docs, err := p.store.FindAllDocuments(ctx)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	if err := p.rebuildFrom(docs); err != nil {
		return err
	}
	p.logger.Info("index loaded from store",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", p.Size()))
	return nil
}

// rebuildFrom flattens the documents' stored chunk embeddings and atomically
// replaces both the index and the chunk store.
func (p *Pipeline) rebuildFrom(docs []*models.Document) error {
	var (
		embeddings [][]float32
		records    []models.ChunkRecord
	)
	for _, doc := range docs {
		for _, ch := range doc.Chunks {
			embeddings = append(embeddings, ch.Embedding)
			records = append(records, models.ChunkRecord{Text: ch.Text, Metadata: ch.Metadata, DocID: doc.ID})
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.index.Rebuild(embeddings); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	p.chunks = records
	p.mustAligned()
	return nil
}

// mustAligned panics when the chunk store and index disagree on size. The
// append/rebuild paths make this unreachable; a panic here means a later
// change broke the positional invariant, which silently corrupts every
// subsequent retrieval if allowed to proceed.
func (p *Pipeline) mustAligned() {
	if len(p.chunks) != p.index.Size() {
		panic(fmt.Sprintf("chunk store size %d != vector index size %d", len(p.chunks), p.index.Size()))
	}
}

// Size returns the number of indexed chunks.
func (p *Pipeline) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.chunks)
}

// Dimensions returns the index's established embedding dimension (0 if empty).
func (p *Pipeline) Dimensions() int {
	return p.index.Dimensions()
}
