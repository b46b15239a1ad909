package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	Service     ChatService      // Required
	Limits      RateLimitChecker // Required
	Health      HealthConfig
	Pool        *pgxpool.Pool // Optional: nil disables DB ping in /ready
	Version     string
	CORSOrigins []string // Allowed origins for CORS ("*" allows all)
	TrustProxy  bool     // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateBurst   int      // Per-IP rate limiter burst size (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.Limits == nil {
		return nil, errors.New("rate limit checker is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{
		service: cfg.Service,
		limits:  cfg.Limits,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", serviceInfo(cfg.Version, logger))
	mux.HandleFunc("POST /api/chat", ch.send)
	mux.HandleFunc("GET /api/rate-limit/{conversation_id}", ch.rateLimitStatus)

	// Per-IP token bucket (1 token/sec refill).
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in
	// log attributes. CORS must be before RateLimit so preflight
	// OPTIONS gets proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Top-level mux separates health probes from the middleware stack.
	topMux := http.NewServeMux()
	topMux.Handle("GET /health", healthHandler(cfg.Health, logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
