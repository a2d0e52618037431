package api

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/http"

	"github.com/quiverkb/quiver/internal/assistant"
	"github.com/quiverkb/quiver/internal/gateway"
)

// Chatter runs the focused chat pipeline.
type Chatter interface {
	ChatStream(ctx context.Context, req assistant.ChatRequest) (iter.Seq2[string, error], error)
}

type chatHandler struct {
	assistant Chatter
	logger    *slog.Logger
}

// chatRequest is the POST /api/v1/chat body.
type chatRequest struct {
	Messages []assistant.RawTurn `json:"messages"`
	ItemID   int64               `json:"itemId,omitempty"`
}

// send handles POST /api/v1/chat. The response is a plain-text stream of
// model output fragments, flushed as they arrive.
//
// Setup failures produce a JSON error before any byte is written. Once
// streaming has begun a failure aborts the connection, so the client can
// tell a broken stream from a complete one.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "identity required", h.logger)
		return
	}

	var req chatRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "missing_messages", "messages are required", h.logger)
		return
	}

	stream, err := h.assistant.ChatStream(r.Context(), assistant.ChatRequest{
		Owner:    owner,
		Messages: req.Messages,
		ItemID:   req.ItemID,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			writeError(w, http.StatusInternalServerError, "ai_not_configured", "AI API key not configured.", h.logger)
			return
		}
		h.logger.Error("failed to start chat", "error", err)
		writeError(w, http.StatusInternalServerError, "chat_failed", "failed to process chat request", h.logger)
		return
	}

	// Headers are deferred until the first fragment so an error raised
	// before any model output still gets a clean JSON response.
	started := false
	rc := http.NewResponseController(w)

	for text, err := range stream {
		if err != nil {
			if !started {
				h.logger.Error("chat stream failed before first fragment", "error", err)
				writeError(w, http.StatusInternalServerError, "chat_failed", "failed to process chat request", h.logger)
				return
			}
			h.logger.Error("chat stream aborted mid-response", "error", err)
			panic(http.ErrAbortHandler)
		}
		if text == "" {
			continue
		}

		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(text)); err != nil {
			h.logger.Debug("client disconnected mid-stream", "error", err)
			return
		}
		_ = rc.Flush()
	}

	if !started {
		// Model produced no output at all; an empty 200 stream is still a
		// complete response.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}
}
