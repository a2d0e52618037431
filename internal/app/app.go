// Package app provides application initialization and dependency injection.
//
// App is the container that wires the configuration, database pool,
// completion gateway, knowledge store, assistant pipelines, and the HTTP
// server into one graph with a single Close.
package app

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quiverkb/quiver/internal/api"
	"github.com/quiverkb/quiver/internal/assistant"
	"github.com/quiverkb/quiver/internal/config"
	"github.com/quiverkb/quiver/internal/gateway"
	"github.com/quiverkb/quiver/internal/knowledge"
	"github.com/quiverkb/quiver/internal/log"
)

// App is the core application container.
type App struct {
	Config    *config.Config
	Logger    log.Logger
	Pool      *pgxpool.Pool
	Gateway   *gateway.Gateway
	Knowledge *knowledge.Store
	Assistant *assistant.Assistant
	Server    *api.Server

	otelCleanup func()
}

// Close gracefully releases all resources in reverse initialization order.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.Pool != nil {
		a.Pool.Close()
		if a.Logger != nil {
			a.Logger.Info("database pool closed")
		}
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}
