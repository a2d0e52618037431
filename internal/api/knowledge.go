package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/quiverkb/quiver/internal/assistant"
	"github.com/quiverkb/quiver/internal/knowledge"
)

// maxBodyBytes caps request bodies. Knowledge items are short-form notes;
// anything near this limit is abuse.
const maxBodyBytes = 1 << 20 // 1 MiB

// ItemStore is the persistence surface the handlers need.
type ItemStore interface {
	Create(ctx context.Context, item knowledge.NewItem) (*knowledge.Item, error)
	List(ctx context.Context, f knowledge.Filter) ([]knowledge.Item, error)
	GetByID(ctx context.Context, id int64, owner string) (*knowledge.Item, error)
	Update(ctx context.Context, id int64, owner string, p knowledge.Patch) (*knowledge.Item, error)
	Delete(ctx context.Context, id int64, owner string) error
}

// Enhancer produces AI summary and tags for new items, degrading to the
// caller's input when AI is unavailable.
type Enhancer interface {
	Enhance(ctx context.Context, title, content string, tags []string) assistant.Enhancement
}

type knowledgeHandler struct {
	store    ItemStore
	enhancer Enhancer
	logger   *slog.Logger
}

// createItemRequest is the POST body. Tags arrive as a comma-separated
// string; URL, when present, is folded into the content.
type createItemRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Type    string `json:"type"`
	Tags    string `json:"tags"`
	URL     string `json:"url"`
}

// patchItemRequest is the PATCH body; nil fields are left untouched.
type patchItemRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Type    *string `json:"type"`
	Tags    *string `json:"tags"`
	Summary *string `json:"summary"`
}

// list handles GET /api/v1/knowledge.
func (h *knowledgeHandler) list(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "identity required", h.logger)
		return
	}

	q := r.URL.Query()
	items, err := h.store.List(r.Context(), knowledge.Filter{
		Owner: owner,
		Type:  q.Get("type"),
		Query: q.Get("q"),
		Tag:   q.Get("tag"),
	})
	if err != nil {
		h.logger.Error("failed to list knowledge items", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list knowledge items", h.logger)
		return
	}

	if items == nil {
		items = []knowledge.Item{}
	}
	writeJSON(w, http.StatusOK, items, h.logger)
}

// create handles POST /api/v1/knowledge. Enhancement runs before the write
// and its failure never blocks persistence.
func (h *knowledgeHandler) create(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "identity required", h.logger)
		return
	}

	var req createItemRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	if req.Title == "" || req.Content == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "title, content and type are required", h.logger)
		return
	}
	itemType := knowledge.Type(req.Type)
	if !itemType.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_type", "type must be note, link or insight", h.logger)
		return
	}

	enh := h.enhancer.Enhance(r.Context(), req.Title, req.Content, knowledge.ParseTags(req.Tags))

	item, err := h.store.Create(r.Context(), knowledge.NewItem{
		Owner:   owner,
		Title:   req.Title,
		Content: knowledge.ContentWithSource(req.Content, req.URL),
		Type:    itemType,
		Tags:    enh.Tags,
		Summary: enh.Summary,
	})
	if err != nil {
		h.logger.Error("failed to create knowledge item", "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create knowledge item", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, item, h.logger)
}

// get handles GET /api/v1/knowledge/{id}.
func (h *knowledgeHandler) get(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}

	item, err := h.store.GetByID(r.Context(), id, owner)
	if err != nil {
		h.writeStoreError(w, err, "get_failed", "failed to get knowledge item")
		return
	}
	writeJSON(w, http.StatusOK, item, h.logger)
}

// update handles PATCH /api/v1/knowledge/{id}.
func (h *knowledgeHandler) update(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}

	var req patchItemRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	patch := knowledge.Patch{
		Title:   req.Title,
		Content: req.Content,
		Summary: req.Summary,
	}
	if req.Type != nil {
		t := knowledge.Type(*req.Type)
		patch.Type = &t
	}
	if req.Tags != nil {
		tags := knowledge.ParseTags(*req.Tags)
		if tags == nil {
			tags = []string{}
		}
		patch.Tags = &tags
	}

	item, err := h.store.Update(r.Context(), id, owner, patch)
	if err != nil {
		switch {
		case errors.Is(err, knowledge.ErrInvalidType):
			writeError(w, http.StatusBadRequest, "invalid_type", "type must be note, link or insight", h.logger)
		case errors.Is(err, knowledge.ErrEmptyTitle):
			writeError(w, http.StatusBadRequest, "empty_title", "title must not be empty", h.logger)
		default:
			h.writeStoreError(w, err, "update_failed", "failed to update knowledge item")
		}
		return
	}
	writeJSON(w, http.StatusOK, item, h.logger)
}

// remove handles DELETE /api/v1/knowledge/{id}.
func (h *knowledgeHandler) remove(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id, owner); err != nil {
		h.writeStoreError(w, err, "delete_failed", "failed to delete knowledge item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownerAndID resolves the caller identity and the {id} path value, writing
// the error response itself when either is missing.
func (h *knowledgeHandler) ownerAndID(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	owner, ok := ownerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "identity required", h.logger)
		return "", 0, false
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid item ID", h.logger)
		return "", 0, false
	}
	return owner, id, true
}

func (h *knowledgeHandler) writeStoreError(w http.ResponseWriter, err error, code, message string) {
	if errors.Is(err, knowledge.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "knowledge item not found", h.logger)
		return
	}
	h.logger.Error(message, "error", err)
	writeError(w, http.StatusInternalServerError, code, message, h.logger)
}

// decodeBody reads a size-capped JSON body into dst, writing the error
// response on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", logger)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", logger)
		return false
	}
	return true
}
