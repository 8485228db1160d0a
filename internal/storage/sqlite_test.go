package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/Tarrun1506/starrag-bot/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testDocument(id, filename string, createdAt time.Time) *models.Document {
	return &models.Document{
		ID:       id,
		Filename: filename,
		Content:  "full document content",
		Chunks: []models.Chunk{
			{
				Text:      "first chunk",
				Metadata:  models.ChunkMetadata{Source: filename},
				Embedding: []float32{0.25, -1.5, 3.75},
			},
			{
				Text:      "second chunk",
				Metadata:  models.ChunkMetadata{Source: filename},
				Embedding: []float32{1, 2, 3},
			},
		},
		CreatedAt: createdAt,
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := testDocument("doc-1", "notes.txt", time.Now().UTC())
	if err := store.SaveDocument(ctx, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	docs, err := store.FindAllDocuments(ctx)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	got := docs[0]
	if got.ID != want.ID || got.Filename != want.Filename || got.Content != want.Content {
		t.Errorf("document fields differ: got %+v", got)
	}
	if len(got.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got.Chunks))
	}
	for i, ch := range got.Chunks {
		if ch.Text != want.Chunks[i].Text {
			t.Errorf("chunk %d text: got %q want %q", i, ch.Text, want.Chunks[i].Text)
		}
		if !reflect.DeepEqual(ch.Embedding, want.Chunks[i].Embedding) {
			t.Errorf("chunk %d embedding did not round-trip: got %v", i, ch.Embedding)
		}
	}
}

func TestFindAllDocumentsOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"doc-a", "doc-b", "doc-c"} {
		doc := testDocument(id, id+".txt", base.Add(time.Duration(i)*time.Minute))
		if err := store.SaveDocument(ctx, doc); err != nil {
			t.Fatalf("save %s failed: %v", id, err)
		}
	}

	docs, err := store.FindAllDocuments(ctx)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	wantOrder := []string{"doc-a", "doc-b", "doc-c"}
	for i, doc := range docs {
		if doc.ID != wantOrder[i] {
			t.Errorf("position %d: got %s want %s", i, doc.ID, wantOrder[i])
		}
	}

	// Listing is newest first.
	infos, err := store.ListDocumentInfo(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if infos[0].ID != "doc-c" {
		t.Errorf("expected newest document first, got %s", infos[0].ID)
	}
}

func TestDeleteDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveDocument(ctx, testDocument("doc-1", "a.txt", time.Now().UTC())); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	n, err := store.DeleteDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 removed document, got %d", n)
	}

	chunks, err := store.CountChunks(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if chunks != 0 {
		t.Errorf("expected chunks removed with document, got %d", chunks)
	}

	n, err = store.DeleteDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 removed for missing document, got %d", n)
	}
}

func TestCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"doc-1", "doc-2"} {
		if err := store.SaveDocument(ctx, testDocument(id, id+".txt", time.Now().UTC())); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	docs, err := store.CountDocuments(ctx)
	if err != nil {
		t.Fatalf("count documents failed: %v", err)
	}
	if docs != 2 {
		t.Errorf("expected 2 documents, got %d", docs)
	}
	chunks, err := store.CountChunks(ctx)
	if err != nil {
		t.Fatalf("count chunks failed: %v", err)
	}
	if chunks != 4 {
		t.Errorf("expected 4 chunks, got %d", chunks)
	}
}

func TestConversationHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	turns := []*models.ConversationTurn{
		{ConversationID: "conv-1", Query: "what is raft?", Response: "a consensus protocol", Model: "mistral:latest", Sources: []string{"raft.txt"}, Timestamp: base},
		{ConversationID: "conv-1", Query: "who leads?", Response: "the elected leader", Model: "mistral:latest", Sources: []string{"raft.txt"}, Timestamp: base.Add(time.Minute)},
		{ConversationID: "conv-2", Query: "what is paxos?", Response: "another protocol", Model: "gemma3:1b", Sources: nil, Timestamp: base.Add(2 * time.Minute)},
	}
	for _, turn := range turns {
		if err := store.SaveConversationTurn(ctx, turn); err != nil {
			t.Fatalf("save turn failed: %v", err)
		}
	}

	summaries, err := store.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(summaries))
	}
	// Newest conversation first; each summary carries the opening query.
	if summaries[0].ConversationID != "conv-2" {
		t.Errorf("expected conv-2 first, got %s", summaries[0].ConversationID)
	}
	if summaries[1].FirstQuery != "what is raft?" {
		t.Errorf("expected first query of conv-1, got %q", summaries[1].FirstQuery)
	}

	got, err := store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(got))
	}
	if got[0].Query != "what is raft?" || got[1].Query != "who leads?" {
		t.Errorf("turns out of order: %q then %q", got[0].Query, got[1].Query)
	}
	if !reflect.DeepEqual(got[0].Sources, []string{"raft.txt"}) {
		t.Errorf("sources did not round-trip: %v", got[0].Sources)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetConversation(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
