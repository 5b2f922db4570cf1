package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/storage"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200

	// retryAfterSeconds is sent with responses whose cause may clear up on its own.
	retryAfterSeconds = "5"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var input models.IngestInput
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Fetch.MaxBytes+(1<<20))
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ingest request", zap.String("url", input.URL), zap.Bool("has_text", input.Text != ""))

	var (
		result *models.IngestResult
		err    error
	)
	if input.Text != "" {
		result, err = s.indexer.Ingest(r.Context(), &input)
	} else if err = requireWebURL(input.URL); err == nil {
		result, err = s.indexer.IngestURL(r.Context(), input.URL, input.Title)
	}
	if err != nil {
		s.fail(w, "ingest failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// requireWebURL rejects anything the server should not fetch on a client's behalf.
// Only http and https pages are fetched; local files must be sent as text.
func requireWebURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return nil
	}
	return fmt.Errorf("%w: only http and https URLs can be fetched, got %q", models.ErrInvalidInput, u.Scheme)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("chat request", zap.String("document_id", req.DocumentID), zap.Int("top_k", req.TopK))
	resp, err := s.engine.Ask(r.Context(), &req)
	if err != nil {
		s.fail(w, "chat failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.engine.RetrieveText(r.Context(), &req)
	if err != nil {
		s.fail(w, "retrieve failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultPageLimit)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	limit = min(limit, maxPageLimit)

	docs, err := s.storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.fail(w, "list pages failed", err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"pages": docs})
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	doc, err := s.storage.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get page failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetSegments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.storage.GetDocument(r.Context(), id); err != nil {
		s.fail(w, "get segments failed", err)
		return
	}
	segments, err := s.storage.GetSegmentsByDocumentID(r.Context(), id)
	if err != nil {
		s.fail(w, "get segments failed", err)
		return
	}
	if segments == nil {
		segments = []*models.Segment{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"segments": segments})
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete page request", zap.String("id", id))
	if err := s.indexer.DeleteDocument(r.Context(), id); err != nil {
		s.fail(w, "deletion failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.fail(w, "status: count documents failed", err)
		return
	}
	segCount, err := s.storage.CountSegments(ctx)
	if err != nil {
		s.fail(w, "status: count segments failed", err)
		return
	}

	resp := &models.StatusResponse{
		Documents: docCount,
		Segments:  segCount,
		Config:    StatusConfig(s.config),
	}
	if diskBytes, err := storage.DiskUsage(s.config.Storage); err == nil {
		resp.DiskUsageBytes = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// StatusConfig returns the configuration summary reported by the status endpoint.
func StatusConfig(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"storage_backend":      cfg.Storage.Backend,
		"database_path":        cfg.Storage.DatabasePath,
		"embedding_provider":   cfg.Embedding.Provider,
		"embedding_model":      cfg.Embedding.Model,
		"embedding_dimensions": cfg.Embedding.Dimensions,
		"completion_model":     cfg.Completion.Model,
		"chunk_max_len":        cfg.Chunking.MaxLen,
		"chunk_overlap":        cfg.Chunking.Overlap,
		"top_k":                cfg.Retrieval.TopK,
	}
}

// statusFor maps a classified error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrEmbeddingCountMismatch):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrStoreWriteFailure):
		return http.StatusInternalServerError
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrEmptyContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err at a level matching its status and writes the error response.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error(msg, zap.Error(err), zap.Int("status", status))
	} else {
		s.logger.Debug(msg, zap.Error(err), zap.Int("status", status))
	}
	if models.IsRetryable(err) {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	s.respondError(w, status, err.Error())
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
