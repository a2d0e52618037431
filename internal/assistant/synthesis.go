package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/quiverkb/quiver/internal/gateway"
	"github.com/quiverkb/quiver/internal/knowledge"
)

// FallbackNoMatches is the answer when the query matches nothing.
const FallbackNoMatches = "No matching information found in the knowledge base."

// Source points at one knowledge item that grounded an answer.
type Source struct {
	ID      int64          `json:"id"`
	Title   string         `json:"title"`
	Type    knowledge.Type `json:"type"`
	Summary string         `json:"summary"`
	URL     string         `json:"url"`
}

// Answer is the result of a broad knowledge query.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Query answers a free-text question from the whole knowledge base.
// The query runs unscoped (it backs the public endpoint), grounded in the
// newest matching items up to the configured top-K. Sources are always
// populated for whatever was selected, even when the answer is a fallback.
//
// A model failure is an error, never downgraded to a fallback answer.
func (a *Assistant) Query(ctx context.Context, query string) (*Answer, error) {
	items, err := a.selectItems(ctx, knowledge.Filter{Query: query})
	if err != nil {
		return nil, err
	}

	sources := make([]Source, len(items))
	for i, item := range items {
		sources[i] = Source{
			ID:      item.ID,
			Title:   item.Title,
			Type:    item.Type,
			Summary: item.Summary,
			URL:     fmt.Sprintf("/dashboard?item=%d", item.ID),
		}
	}

	if len(items) == 0 {
		return &Answer{Answer: FallbackNoMatches, Sources: sources}, nil
	}

	if !a.completer.Enabled() {
		a.logger.Warn("AI synthesis disabled, returning fallback answer",
			"matches", len(items))
		return &Answer{
			Answer:  fmt.Sprintf("Found %d related items, but AI synthesis is disabled.", len(items)),
			Sources: sources,
		}, nil
	}

	prompt := fmt.Sprintf(
		"You are answering a query from a user's personal knowledge base.\n\nQuery: %s\n\nContext:\n%s\n\nAnswer concisely based ONLY on the provided context.",
		query, broadContext(items),
	)

	text, err := a.completer.Complete(ctx, gateway.Request{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("synthesizing answer: %w", err)
	}

	return &Answer{Answer: strings.TrimSpace(text), Sources: sources}, nil
}
