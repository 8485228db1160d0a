package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Tarrun1506/starrag-bot/internal/extract"
	"github.com/Tarrun1506/starrag-bot/internal/models"
	"github.com/Tarrun1506/starrag-bot/internal/pipeline"
	"github.com/Tarrun1506/starrag-bot/internal/rag"
	"github.com/Tarrun1506/starrag-bot/internal/storage"
)

// maxUploadBytes bounds multipart uploads (32 MiB).
const maxUploadBytes = 32 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		s.respondError(w, http.StatusBadRequest, "no file selected")
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	docID, err := s.service.Upload(r.Context(), content, header.Filename)
	if err != nil {
		s.logger.Error("upload failed", zap.String("filename", header.Filename), zap.Error(err))
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": "File " + header.Filename + " processed successfully",
		"id":      docID,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.service.ListDocuments(r.Context())
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []*models.DocumentInfo{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.DeleteDocument(r.Context(), id); err != nil {
		s.logger.Error("delete failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Document deleted successfully"})
}

// modelsProbeTimeout bounds the availability probe on the models endpoint,
// which should answer quickly; the generate path tolerates a slower service.
const modelsProbeTimeout = 15 * time.Second

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), modelsProbeTimeout)
	defer cancel()

	gen := s.service.ModelGenerator()
	available, reported, err := gen.AvailableModels(ctx)
	if err != nil {
		s.respondJSON(w, http.StatusOK, map[string]any{
			"models":  gen.AllowedModels(),
			"status":  "disconnected",
			"message": "Cannot connect to Ollama. Run \"ollama serve\" in terminal.",
		})
		return
	}
	if len(available) == 0 {
		names := "none"
		if len(reported) > 0 {
			names = strings.Join(reported, ", ")
		}
		s.respondJSON(w, http.StatusOK, map[string]any{
			"models":  gen.AllowedModels(),
			"status":  "no_models",
			"message": "None of the allowed models found. Available models: " + names,
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"models": available, "status": "connected"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "no query provided")
		return
	}
	resp, err := s.service.Query(r.Context(), &req)
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.service.ListConversations(r.Context())
	if err != nil {
		s.logger.Error("list conversations failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if conversations == nil {
		conversations = []*models.ConversationSummary{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	turns, err := s.service.GetConversation(r.Context(), id)
	if err != nil {
		s.respondError(w, statusForError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"conversations": turns})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "StarRAG API is running",
	})
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, extract.ErrUnsupportedFileType),
		errors.Is(err, pipeline.ErrEmptyDocument),
		errors.Is(err, rag.ErrModelNotAllowed):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
