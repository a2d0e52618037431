package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quiverkb/quiver/db"
	"github.com/quiverkb/quiver/internal/api"
	"github.com/quiverkb/quiver/internal/assistant"
	"github.com/quiverkb/quiver/internal/config"
	"github.com/quiverkb/quiver/internal/gateway"
	"github.com/quiverkb/quiver/internal/knowledge"
	"github.com/quiverkb/quiver/internal/log"
	"github.com/quiverkb/quiver/internal/observability"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must be ready before the gateway initializes Genkit, so the
	// spans it produces have a processor to land in.
	a.otelCleanup = observability.SetupTracing(ctx, cfg.Otel, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	gw, err := gateway.New(ctx, gateway.Config{
		ModelName:      cfg.ModelName,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		Logger:         logger.With("component", "gateway"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating AI gateway: %w", err)
	}
	a.Gateway = gw

	a.Knowledge = knowledge.New(pool, logger.With("component", "knowledge"))

	asst, err := assistant.New(assistant.Config{
		Completer: gw,
		Store:     a.Knowledge,
		Logger:    logger.With("component", "assistant"),
		TopK:      cfg.SynthesisTopK,
	})
	if err != nil {
		return nil, fmt.Errorf("creating assistant: %w", err)
	}
	a.Assistant = asst

	server, err := api.NewServer(api.ServerConfig{
		Logger:      logger.With("component", "api"),
		Store:       a.Knowledge,
		Assistant:   asst,
		Pool:        pool,
		CORSOrigins: cfg.CORSOrigins,
		IsDev:       !cfg.IsProduction(),
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   cfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Server = server

	return a, nil
}

// provideDBPool runs migrations, then opens and verifies the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
