// Package chi implements the HTTP transport over the chi router.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/annex/internal/domain"
	collectionuc "github.com/kailas-cloud/annex/internal/usecase/collection"
	vectoruc "github.com/kailas-cloud/annex/internal/usecase/vector"
	"github.com/kailas-cloud/annex/internal/version"
)

// ErrorCode identifies an error class in HTTP responses.
type ErrorCode string

const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeCollectionNotFound     ErrorCode = "collection_not_found"
	CodeCollectionExists       ErrorCode = "collection_already_exists"
	CodeDimensionMismatch      ErrorCode = "dimension_mismatch"
	CodeArityMismatch          ErrorCode = "arity_mismatch"
	CodeCapacityExceeded       ErrorCode = "capacity_exceeded"
	CodeInvalidConfig          ErrorCode = "invalid_config"
	CodeZeroVector             ErrorCode = "zero_vector"
	CodeNotImplemented         ErrorCode = "not_implemented"
	CodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers for the vector search API.
type Server struct {
	collections   *collectionuc.Service
	vectors       *vectoruc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(collections *collectionuc.Service, vectors *vectoruc.Service, logger *zap.Logger) *Server {
	s := &Server{
		collections: collections,
		vectors:     vectors,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeCollectionNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, CodeCollectionExists),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, CodeDimensionMismatch),
		sentinelHandler(domain.ErrArityMismatch, http.StatusBadRequest, CodeArityMismatch),
		sentinelHandler(domain.ErrCapacityExceeded, http.StatusBadRequest, CodeCapacityExceeded),
		sentinelHandler(domain.ErrInvalidConfig, http.StatusBadRequest, CodeInvalidConfig),
		sentinelHandler(domain.ErrZeroVector, http.StatusBadRequest, CodeZeroVector),
		sentinelHandler(domain.ErrNotImplemented, http.StatusNotImplemented, CodeNotImplemented),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, CodeEmbeddingProviderError),
	}
	return s
}

// Routes mounts all API handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/collections", s.ListCollections)
	r.Post("/collections", s.CreateCollection)
	r.Delete("/collections/{name}", s.DeleteCollection)
	r.Post("/collections/{name}/upsert", s.Upsert)
	r.Post("/collections/{name}/upsert-text", s.UpsertText)
	r.Post("/collections/{name}/search", s.Search)
	r.Get("/health", s.Health)
	r.Get("/metrics", s.Metrics)
}

type createCollectionRequest struct {
	Name   string                  `json:"name"`
	Config domain.CollectionConfig `json:"config"`
	Dim    int                     `json:"dim"`
}

// CreateCollection handles POST /collections.
func (s *Server) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	info, err := s.collections.Create(r.Context(), req.Name, req.Config, req.Dim)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// ListCollections handles GET /collections.
func (s *Server) ListCollections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.collections.List(r.Context()))
}

// DeleteCollection handles DELETE /collections/{name}.
func (s *Server) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.collections.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type upsertRequest struct {
	IDs      []uint64          `json:"ids"`
	Vectors  []domain.Vector   `json:"vectors"`
	Payloads []json.RawMessage `json:"payloads"`
}

type upsertResponse struct {
	Upserted int `json:"upserted"`
}

// Upsert handles POST /collections/{name}/upsert.
func (s *Server) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Payloads == nil {
		req.Payloads = make([]json.RawMessage, len(req.IDs))
	}

	n, err := s.vectors.Upsert(r.Context(), chi.URLParam(r, "name"), req.IDs, req.Vectors, req.Payloads)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, upsertResponse{Upserted: n})
}

type upsertTextRequest struct {
	IDs      []uint64          `json:"ids"`
	Texts    []string          `json:"texts"`
	Payloads []json.RawMessage `json:"payloads"`
}

// UpsertText handles POST /collections/{name}/upsert-text.
func (s *Server) UpsertText(w http.ResponseWriter, r *http.Request) {
	var req upsertTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Payloads == nil {
		req.Payloads = make([]json.RawMessage, len(req.IDs))
	}

	n, err := s.vectors.UpsertText(r.Context(), chi.URLParam(r, "name"), req.IDs, req.Texts, req.Payloads)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, upsertResponse{Upserted: n})
}

type searchRequest struct {
	Query domain.Vector `json:"query"`
	TopK  int           `json:"top_k"`
	// EF overrides the collection's search breadth for this query.
	EF int `json:"ef,omitempty"`
}

// searchPair marshals as the two-element array [id, distance].
type searchPair struct {
	ID       uint64
	Distance float32
}

func (p searchPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.ID, p.Distance})
}

// Search handles POST /collections/{name}/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	results, err := s.vectors.Search(r.Context(), chi.URLParam(r, "name"), req.Query, req.TopK, req.EF)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	pairs := make([]searchPair, len(results))
	for i, res := range results {
		pairs[i] = searchPair{ID: res.ID, Distance: res.Distance}
	}
	writeJSON(w, http.StatusOK, pairs)
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		domain.ErrDimensionMismatch,
		domain.ErrArityMismatch,
		domain.ErrCapacityExceeded,
		domain.ErrInvalidConfig,
		domain.ErrZeroVector,
		domain.ErrNotImplemented,
		domain.ErrEmbeddingProvider,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	var dimErr *domain.DimensionMismatchError
	if errors.As(err, &dimErr) {
		msg = dimErr.Error()
	}
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
