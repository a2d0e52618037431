package assistant

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/quiverkb/quiver/internal/gateway"
	"github.com/quiverkb/quiver/internal/knowledge"
)

// ChatRequest is one focused chat call. ItemID of zero means no item is in
// focus and the assistant answers as a general assistant.
type ChatRequest struct {
	Owner    string
	Messages []RawTurn
	ItemID   int64
}

// ChatStream resolves the focus item, builds the system instruction, and
// returns the model's response as an ordered fragment stream.
//
// Setup failures (disabled gateway, store errors) are returned before any
// fragment is produced. An item that does not exist or belongs to another
// owner is not an error; the chat falls back to the generic context.
// Mid-stream failures surface as an error value from the returned sequence.
func (a *Assistant) ChatStream(ctx context.Context, req ChatRequest) (iter.Seq2[string, error], error) {
	if !a.completer.Enabled() {
		return nil, gateway.ErrNotConfigured
	}

	contextString := genericContext
	if req.ItemID != 0 {
		item, err := a.store.GetByID(ctx, req.ItemID, req.Owner)
		switch {
		case err == nil:
			contextString = focusedContext(item)
		case errors.Is(err, knowledge.ErrNotFound), errors.Is(err, knowledge.ErrEmptyOwner):
			a.logger.Debug("focus item not resolved, using generic context",
				"item_id", req.ItemID)
		default:
			return nil, fmt.Errorf("resolving focus item %d: %w", req.ItemID, err)
		}
	}

	history, prompt := normalizeHistory(req.Messages)

	return a.completer.CompleteStream(ctx, gateway.Request{
		System:  systemInstruction(contextString),
		History: history,
		Prompt:  prompt,
	}), nil
}
