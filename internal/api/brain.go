package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/quiverkb/quiver/internal/assistant"
)

// Answerer runs the broad knowledge query pipeline.
type Answerer interface {
	Query(ctx context.Context, query string) (*assistant.Answer, error)
}

type brainHandler struct {
	assistant Answerer
	logger    *slog.Logger
}

// query handles GET /api/v1/brain/query. The endpoint is public: it needs no
// identity, searches the whole store, and allows any origin.
func (h *brainHandler) query(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing_query", `Missing "q" search parameter.`, h.logger)
		return
	}

	answer, err := h.assistant.Query(r.Context(), q)
	if err != nil {
		h.logger.Error("failed to process public query", "error", err, "query", q)
		writeError(w, http.StatusInternalServerError, "query_failed", "Failed to process public query.", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, answer, h.logger)
}
