// Package httpapi serves the indexing, answering and search operations as
// JSON over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bull/study-rag-server/internal/answer"
	"github.com/bull/study-rag-server/internal/indexer"
	"github.com/bull/study-rag-server/internal/rag"
	"github.com/bull/study-rag-server/internal/storage"
)

// maxBodyBytes bounds request bodies; resource texts arrive inline.
const maxBodyBytes = 32 << 20

// Service is the subset of rag.Service the handlers call.
type Service interface {
	Index(ctx context.Context, req rag.IndexRequest) (*rag.IndexResponse, error)
	Answer(ctx context.Context, req rag.AnswerRequest) (*answer.Result, error)
	Search(ctx context.Context, req rag.SearchRequest) (*rag.SearchResponse, error)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Config holds handler dependencies. Qdrant is optional.
type Config struct {
	Service Service
	Store   HealthChecker
	Qdrant  HealthChecker
	Logger  *slog.Logger
}

// NewMux registers the API routes on a new ServeMux. Callers may add more
// routes (e.g. /mcp) before wrapping it with Middleware.
func NewMux(cfg Config) *http.ServeMux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /index", newIndexHandler(cfg.Service, logger))
	mux.HandleFunc("POST /answer", newAnswerHandler(cfg.Service, logger))
	mux.HandleFunc("POST /search", newSearchHandler(cfg.Service, logger))
	mux.HandleFunc("GET /health", NewHealthHandler(cfg.Store, cfg.Qdrant))
	mux.HandleFunc("GET /{$}", NewLandingHandler())
	return mux
}

func newIndexHandler(svc Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rag.IndexRequest
		if !decode(w, r, &req) {
			return
		}

		resp, err := svc.Index(r.Context(), req)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, resp)
		case errors.Is(err, indexer.ErrValidation):
			writeError(w, http.StatusBadRequest, "Missing required fields", "")
		case errors.Is(err, indexer.ErrNoContent):
			writeError(w, http.StatusBadRequest, "No content could be processed from the provided resources", "")
		case errors.Is(err, rag.ErrNotConfigured):
			logger.Error("Index request on unconfigured service", "error", err)
			writeError(w, http.StatusInternalServerError, "Service not configured", err.Error())
		default:
			logger.Error("Indexing failed", "error", err, "subject_id", req.SubjectID, "topic_id", req.TopicID)
			writeError(w, http.StatusInternalServerError, "Failed to index resources", err.Error())
		}
	}
}

func newAnswerHandler(svc Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rag.AnswerRequest
		if !decode(w, r, &req) {
			return
		}

		res, err := svc.Answer(r.Context(), req)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, res)
		case errors.Is(err, rag.ErrValidation):
			writeError(w, http.StatusBadRequest, "Missing required field: query", "")
		case errors.Is(err, rag.ErrNotConfigured):
			logger.Error("Answer request on unconfigured service", "error", err)
			writeError(w, http.StatusInternalServerError, "Service not configured", err.Error())
		case errors.Is(err, answer.ErrUpstream):
			logger.Error("Chat completion failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to generate answer", err.Error())
		default:
			logger.Error("Answering failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to generate answer", err.Error())
		}
	}
}

func newSearchHandler(svc Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rag.SearchRequest
		if !decode(w, r, &req) {
			return
		}

		resp, err := svc.Search(r.Context(), req)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, resp)
		case errors.Is(err, rag.ErrValidation):
			writeError(w, http.StatusBadRequest, "Missing required fields", "")
		case errors.Is(err, storage.ErrIndexNotFound):
			writeError(w, http.StatusNotFound, "No index found for this topic", "")
		case errors.Is(err, rag.ErrNotConfigured):
			logger.Error("Search request on unconfigured service", "error", err)
			writeError(w, http.StatusInternalServerError, "Service not configured", err.Error())
		default:
			logger.Error("Search failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to search index", err.Error())
		}
	}
}

// decode reads a JSON body into v, writing a 400 and returning false on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}
