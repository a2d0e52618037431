package assistant

import (
	"context"
	"fmt"

	"github.com/quiverkb/quiver/internal/knowledge"
)

// selectItems runs the store filter and applies the top-K selection policy:
// the store orders newest-first, so truncation keeps the most recent matches.
// Store failures propagate; they are never masked as an empty selection.
func (a *Assistant) selectItems(ctx context.Context, f knowledge.Filter) ([]knowledge.Item, error) {
	items, err := a.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("selecting knowledge items: %w", err)
	}
	if a.topK > 0 && len(items) > a.topK {
		items = items[:a.topK]
	}
	return items, nil
}
