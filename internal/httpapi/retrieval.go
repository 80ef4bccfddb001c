// Package httpapi holds the thin HTTP controllers: they translate
// requests into engine calls and Result variants into status codes.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/disambig"
	"github.com/filmatlas/filmatlas/internal/jobs"
	"github.com/filmatlas/filmatlas/internal/retrieval"
)

// Retriever is the engine surface the handler needs.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (retrieval.Result, error)
}

// RetrievalHandler serves entity lookups. One engine per URL kind
// segment (movies, people, series, shows).
type RetrievalHandler struct {
	engines map[string]Retriever
	logger  *zap.Logger
}

// NewRetrievalHandler creates the handler.
func NewRetrievalHandler(engines map[string]Retriever, logger *zap.Logger) *RetrievalHandler {
	return &RetrievalHandler{engines: engines, logger: logger}
}

// RegisterRoutes registers retrieval routes on the provided mux.
func (h *RetrievalHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/{kind}/{slug}", h.handleRetrieve)
}

func (h *RetrievalHandler) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	engine, ok := h.engines[kind]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown entity kind")
		return
	}

	q := r.URL.Query()
	req := retrieval.Request{
		Slug:       r.PathValue("slug"),
		VersionID:  q.Get("version"),
		Locale:     q.Get("locale"),
		ContextTag: q.Get("context"),
	}

	result, err := engine.Retrieve(r.Context(), req)
	if err != nil {
		h.logger.Error("Retrieval failed",
			zap.String("kind", kind),
			zap.String("slug", req.Slug),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	result.Visit(&resultWriter{w: w})
}

// resultWriter maps each Result variant to its response. Exhaustive
// by construction: a new variant fails compilation here.
type resultWriter struct {
	w http.ResponseWriter
}

func (rw *resultWriter) VisitCached(payload []byte) {
	rw.w.Header().Set("Content-Type", "application/json")
	rw.w.Header().Set("X-Cache", "hit")
	rw.w.WriteHeader(http.StatusOK)
	rw.w.Write(payload)
}

func (rw *resultWriter) VisitFound(p retrieval.FoundPayload) {
	writeJSON(rw.w, http.StatusOK, p)
}

func (rw *resultWriter) VisitVersionNotFound() {
	writeError(rw.w, http.StatusNotFound, "version not found")
}

func (rw *resultWriter) VisitNotFound() {
	writeError(rw.w, http.StatusNotFound, "not found")
}

func (rw *resultWriter) VisitGenerationQueued(job jobs.QueueResult) {
	writeJSON(rw.w, http.StatusAccepted, job)
}

func (rw *resultWriter) VisitDisambiguation(meta disambig.Metadata) {
	writeJSON(rw.w, http.StatusMultipleChoices, meta)
}

func (rw *resultWriter) VisitInvalidSlug(reason string, confidence float64) {
	writeJSON(rw.w, http.StatusBadRequest, map[string]any{
		"error":      reason,
		"confidence": confidence,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
