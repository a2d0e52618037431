package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Assistant is the full AI surface the server wires into its handlers.
type Assistant interface {
	Chatter
	Answerer
	Enhancer
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	Store       ItemStore     // Required
	Assistant   Assistant     // Required
	Pool        *pgxpool.Pool // Optional: nil disables the DB check in /ready
	CORSOrigins []string      // Allowed origins for CORS
	IsDev       bool          // Disables HSTS (no HTTPS locally)
	TrustProxy  bool          // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst   int           // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("item store is required")
	}
	if cfg.Assistant == nil {
		return nil, errors.New("assistant is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	kh := &knowledgeHandler{store: cfg.Store, enhancer: cfg.Assistant, logger: logger}
	ch := &chatHandler{assistant: cfg.Assistant, logger: logger}
	bh := &brainHandler{assistant: cfg.Assistant, logger: logger}

	mux := http.NewServeMux()

	// Knowledge CRUD
	mux.HandleFunc("GET /api/v1/knowledge", kh.list)
	mux.HandleFunc("POST /api/v1/knowledge", kh.create)
	mux.HandleFunc("GET /api/v1/knowledge/{id}", kh.get)
	mux.HandleFunc("PATCH /api/v1/knowledge/{id}", kh.update)
	mux.HandleFunc("DELETE /api/v1/knowledge/{id}", kh.remove)

	// Focused chat (streaming)
	mux.HandleFunc("POST /api/v1/chat", ch.send)

	// Public broad query
	mux.HandleFunc("GET /api/v1/brain/query", bh.query)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Owner → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = ownerMiddleware()(handler)
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Top-level mux keeps health probes outside the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// health is a liveness probe. Returns 200 OK while the process is up.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, slog.Default())
}

// readiness reports whether the service can do useful work. With a pool it
// pings the database; without one it degrades to a liveness check.
func readiness(pool *pgxpool.Pool, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := pool.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not reachable", logger)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, logger)
	})
}
