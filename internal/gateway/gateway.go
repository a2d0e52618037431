// Package gateway wraps the Genkit Google AI integration behind a small
// completion API. It is the only package that talks to the model provider;
// everything above it works with plain strings and conversation turns.
//
// The gateway degrades instead of failing: when no GEMINI_API_KEY is present
// it constructs in disabled mode and every completion returns
// ErrNotConfigured, letting the rest of the service run without AI.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/quiverkb/quiver/internal/config"
)

// Conversation roles accepted in a Request history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotConfigured indicates the gateway has no API key and cannot reach
// the model provider. Callers decide whether that is fatal (chat, synthesis)
// or silently skippable (enhancement).
var ErrNotConfigured = errors.New("AI gateway not configured: GEMINI_API_KEY is not set")

// errStreamStopped signals that the stream consumer stopped iterating.
// Returned from the streaming callback to abort generation; never surfaces
// to callers.
var errStreamStopped = errors.New("stream consumer stopped")

// Turn is a single prior exchange in a conversation.
type Turn struct {
	Role string // RoleUser or RoleAssistant
	Text string
}

// Request describes one completion call.
type Request struct {
	System  string // system prompt, may be empty
	History []Turn // prior turns, oldest first
	Prompt  string // the current user message
}

// Config contains all parameters for the gateway.
type Config struct {
	ModelName      string
	Temperature    float32
	MaxTokens      int
	RequestTimeout time.Duration
	Logger         *slog.Logger

	// RateLimiter bounds outbound model calls. Nil uses a default of one
	// request per second with a burst of 5.
	RateLimiter *rate.Limiter
}

func (cfg Config) validate() error {
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Gateway issues completions against the configured Gemini model.
//
// Gateway is safe for concurrent use by multiple goroutines.
type Gateway struct {
	g           *genkit.Genkit // nil when disabled
	modelName   string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// New creates a Gateway. When GEMINI_API_KEY is absent from the environment
// the gateway is constructed disabled; this is not an error.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway config: %w", err)
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(time.Second), 5)
	}

	gw := &Gateway{
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.RequestTimeout,
		limiter:     limiter,
		logger:      cfg.Logger,
	}

	if !config.AIConfigured() {
		cfg.Logger.Warn("GEMINI_API_KEY not set, AI features disabled")
		return gw, nil
	}

	gw.g = genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{}),
		genkit.WithDefaultModel("googleai/"+cfg.ModelName),
	)

	cfg.Logger.Info("AI gateway initialized", "model", cfg.ModelName)
	return gw, nil
}

// Enabled reports whether the gateway can reach the model provider.
func (gw *Gateway) Enabled() bool {
	return gw != nil && gw.g != nil
}

// Complete runs one blocking completion and returns the full response text.
func (gw *Gateway) Complete(ctx context.Context, req Request) (string, error) {
	if !gw.Enabled() {
		return "", ErrNotConfigured
	}

	ctx, cancel := gw.withTimeout(ctx)
	defer cancel()

	if err := gw.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}

	response, err := genkit.Generate(ctx, gw.g, gw.buildOptions(req)...)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	return response.Text(), nil
}

// CompleteStream runs one completion and yields response fragments as the
// model produces them. The sequence ends after the final fragment, or yields
// a single non-nil error and stops. Stopping iteration early aborts
// generation.
func (gw *Gateway) CompleteStream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !gw.Enabled() {
			yield("", ErrNotConfigured)
			return
		}

		ctx, cancel := gw.withTimeout(ctx)
		defer cancel()

		if err := gw.limiter.Wait(ctx); err != nil {
			yield("", fmt.Errorf("waiting for rate limiter: %w", err))
			return
		}

		opts := append(gw.buildOptions(req),
			ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
				text := chunk.Text()
				if text == "" {
					return nil
				}
				if !yield(text, nil) {
					return errStreamStopped
				}
				return nil
			}),
		)

		if _, err := genkit.Generate(ctx, gw.g, opts...); err != nil {
			if errors.Is(err, errStreamStopped) {
				return
			}
			yield("", fmt.Errorf("generating completion: %w", err))
		}
	}
}

// buildOptions translates a Request into Genkit generate options.
func (gw *Gateway) buildOptions(req Request) []ai.GenerateOption {
	messages := make([]*ai.Message, 0, len(req.History)+1)
	for _, turn := range req.History {
		switch turn.Role {
		case RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(turn.Text)))
		default:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(turn.Text)))
		}
	}
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(req.Prompt)))

	temperature := gw.temperature
	genConfig := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(gw.maxTokens),
	}

	opts := []ai.GenerateOption{
		ai.WithMessages(messages...),
		ai.WithConfig(genConfig),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}
	return opts
}

func (gw *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if gw.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, gw.timeout)
}
