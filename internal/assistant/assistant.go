// Package assistant implements the AI pipelines on top of the item store and
// the completion gateway: focused streaming chat, broad knowledge synthesis,
// and best-effort write-time enhancement (summary and tags).
package assistant

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/quiverkb/quiver/internal/gateway"
	"github.com/quiverkb/quiver/internal/knowledge"
)

// Completer is the completion surface the assistant needs from the gateway.
type Completer interface {
	Enabled() bool
	Complete(ctx context.Context, req gateway.Request) (string, error)
	CompleteStream(ctx context.Context, req gateway.Request) iter.Seq2[string, error]
}

// ItemStore is the subset of the knowledge store the assistant reads from.
type ItemStore interface {
	List(ctx context.Context, f knowledge.Filter) ([]knowledge.Item, error)
	GetByID(ctx context.Context, id int64, owner string) (*knowledge.Item, error)
}

// Config contains all required parameters for the Assistant.
type Config struct {
	Completer Completer
	Store     ItemStore
	Logger    *slog.Logger

	// TopK bounds how many items ground a broad query. Zero or negative
	// disables truncation.
	TopK int
}

func (cfg Config) validate() error {
	if cfg.Completer == nil {
		return errors.New("completer is required")
	}
	if cfg.Store == nil {
		return errors.New("item store is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Assistant runs the chat, synthesis, and enhancement pipelines.
//
// Assistant is stateless and safe for concurrent use.
type Assistant struct {
	completer Completer
	store     ItemStore
	topK      int
	logger    *slog.Logger
}

// New creates an Assistant from its dependencies.
func New(cfg Config) (*Assistant, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid assistant config: %w", err)
	}
	return &Assistant{
		completer: cfg.Completer,
		store:     cfg.Store,
		topK:      cfg.TopK,
		logger:    cfg.Logger,
	}, nil
}
