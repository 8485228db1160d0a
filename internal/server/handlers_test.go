package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/Tarrun1506/starrag-bot/internal/config"
	"github.com/Tarrun1506/starrag-bot/internal/embedding"
	"github.com/Tarrun1506/starrag-bot/internal/extract"
	"github.com/Tarrun1506/starrag-bot/internal/models"
	"github.com/Tarrun1506/starrag-bot/internal/pipeline"
	"github.com/Tarrun1506/starrag-bot/internal/rag"
	"github.com/Tarrun1506/starrag-bot/internal/storage"
)

type stubGenerator struct {
	allowed  []string
	reported []string
	listErr  error
}

func (g *stubGenerator) Generate(ctx context.Context, query string, chunks []models.RetrievedChunk, model string) string {
	return "stub answer"
}

func (g *stubGenerator) IsAllowed(model string) bool {
	for _, m := range g.allowed {
		if m == model {
			return true
		}
	}
	return false
}

func (g *stubGenerator) AllowedModels() []string { return g.allowed }

func (g *stubGenerator) AvailableModels(ctx context.Context) ([]string, []string, error) {
	if g.listErr != nil {
		return nil, nil, g.listErr
	}
	reported := g.reported
	if reported == nil {
		reported = g.allowed
	}
	var available []string
	for _, m := range g.allowed {
		for _, r := range reported {
			if m == r {
				available = append(available, m)
			}
		}
	}
	return available, reported, nil
}

func newTestServer(t *testing.T, gen rag.Generator) *Server {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	p := pipeline.New(
		pipeline.NewChunker(1000, 200),
		extract.NewExtractor(),
		embedding.NewMockEmbedder(64),
		store,
		zap.NewNop(),
	)
	svc := rag.NewService(p, gen, store, rag.Config{
		RetrievalK:   5,
		DefaultModel: "gemma3:1b",
	}, zap.NewNop())
	return NewServer(svc, &config.ServerConfig{Host: "localhost", Port: 0}, zap.NewNop())
}

func multipartUpload(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestUploadEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{allowed: []string{"gemma3:1b"}})
	router := srv.Router()

	buf, contentType := multipartUpload(t, "file", "notes.txt", "some document text")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if id, ok := body["id"].(string); !ok || id == "" {
		t.Errorf("expected a document id in the response, got %v", body["id"])
	}
	if msg, ok := body["message"].(string); !ok || !strings.Contains(msg, "notes.txt") {
		t.Errorf("expected filename in message, got %v", body["message"])
	}
}

func TestUploadUnsupportedType(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{allowed: []string{"gemma3:1b"}})
	router := srv.Router()

	buf, contentType := multipartUpload(t, "file", "image.png", "not really a png")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported type, got %d", rec.Code)
	}
}

func TestUploadMissingFile(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{allowed: []string{"gemma3:1b"}})
	router := srv.Router()

	buf, contentType := multipartUpload(t, "wrong_field", "a.txt", "text")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing file field, got %d", rec.Code)
	}
}

func TestQueryEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{allowed: []string{"gemma3:1b"}})
	router := srv.Router()

	buf, contentType := multipartUpload(t, "file", "doc.txt", "Raft elects one leader per term.")
	upload := httptest.NewRequest(http.MethodPost, "/api/upload", buf)
	upload.Header.Set("Content-Type", contentType)
	router.ServeHTTP(httptest.NewRecorder(), upload)

	payload, _ := json.Marshal(map[string]string{"query": "who leads?"})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["response"] != "stub answer" {
		t.Errorf("unexpected response: %v", body["response"])
	}
	if id, ok := body["conversation_id"].(string); !ok || id == "" {
		t.Errorf("expected a conversation id, got %v", body["conversation_id"])
	}
}

func TestQueryEmptyBody(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{allowed: []string{"gemma3:1b"}})
	router := srv.Router()

	payload, _ := json.Marshal(map[string]string{"query": ""})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "no query provided" {
		t.Errorf("unexpected error message: %v", body["error"])
	}
}

func TestQueryDisallowedModel(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{allowed: []string{"gemma3:1b"}})
	router := srv.Router()

	payload, _ := json.Marshal(map[string]string{"query": "q", "model": "gpt-4"})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for disallowed model, got %d", rec.Code)
	}
}

func TestDeleteDocumentNotFound(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{allowed: []string{"gemma3:1b"}})
	router := srv.Router()

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/no-such-id", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListDocumentsEmpty(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{allowed: []string{"gemma3:1b"}})
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	docs, ok := body["documents"].([]any)
	if !ok {
		t.Fatalf("expected documents array, got %T", body["documents"])
	}
	if len(docs) != 0 {
		t.Errorf("expected empty listing, got %d", len(docs))
	}
}

func TestListModelsDisconnected(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{
		allowed: []string{"gemma3:1b"},
		listErr: errors.New("connection refused"),
	})
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "disconnected" {
		t.Errorf("expected disconnected status, got %v", body["status"])
	}
}

func TestListModelsNoneAllowed(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{
		allowed:  []string{"gemma3:1b"},
		reported: []string{"qwen:0.5b", "phi3:mini"},
	})
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	body := decodeBody(t, rec)
	if body["status"] != "no_models" {
		t.Fatalf("expected no_models status, got %v", body["status"])
	}
	// The message names what the service actually has, so the user can pull
	// an allowed model.
	msg, _ := body["message"].(string)
	if !strings.Contains(msg, "qwen:0.5b") || !strings.Contains(msg, "phi3:mini") {
		t.Errorf("expected reported models in message, got %q", msg)
	}
}

func TestListModelsConnected(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{allowed: []string{"gemma3:1b", "mistral:latest"}})
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	body := decodeBody(t, rec)
	if body["status"] != "connected" {
		t.Fatalf("expected connected status, got %v", body["status"])
	}
	if models, ok := body["models"].([]any); !ok || len(models) != 2 {
		t.Errorf("expected 2 models, got %v", body["models"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{allowed: []string{"gemma3:1b"}})
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "healthy" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{allowed: []string{"gemma3:1b"}})
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["persistent"] != true {
		t.Errorf("expected persistent true, got %v", body["persistent"])
	}
	if body["vector_index_size"] != float64(0) {
		t.Errorf("expected empty index, got %v", body["vector_index_size"])
	}
}

func TestGetConversationNotFound(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{allowed: []string{"gemma3:1b"}})
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
