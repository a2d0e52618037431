// Package observability wires OTLP trace export into the process.
//
// Traces go to a local collector/agent over OTLP HTTP; the agent handles
// authentication, buffering, and forwarding. Tracing is best-effort: an
// unreachable agent degrades to a no-op, never a startup failure.
package observability

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/quiverkb/quiver/internal/config"
)

// SetupTracing registers an OTLP HTTP span exporter with the process tracer
// provider and returns a shutdown function that flushes pending spans.
// Must run before the AI gateway is initialized so generated spans have a
// processor to land in.
func SetupTracing(ctx context.Context, cfg config.OtelConfig, logger *slog.Logger) func() {
	agentHost := cfg.AgentHost
	if agentHost == "" {
		agentHost = "localhost:4318"
	}

	// Resource attributes travel via OTEL env vars so the shared tracer
	// provider picks them up. Startup runs single-threaded; Setenv is safe
	// here and nowhere later.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentHost),
		otlptracehttp.WithInsecure(), // local agent, no TLS
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"agent", agentHost,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}
