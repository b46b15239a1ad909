// Package api provides the JSON REST API server for the chatbot.
//
// # Architecture
//
// The server uses Go 1.22+ method routing with a layered middleware
// stack:
//
//	Recovery → RequestID → Logging → CORS → RateLimit → Routes
//
// RequestID runs before Logging so request_id is available in log
// attributes. CORS runs before RateLimit so preflight OPTIONS gets
// proper CORS headers. Health probes bypass the middleware stack via a
// top-level mux, ensuring they remain fast and unauthenticated.
//
// # Endpoints
//
// Health probes (no middleware):
//   - GET /health: per-dependency configuration status
//   - GET /ready: database reachability
//
// Service:
//   - GET /: service identity
//   - POST /api/chat: one chat turn
//   - GET /api/rate-limit/{conversation_id}: remaining message quota
//
// # Error Handling
//
// Error responses use an envelope format:
//
//	{"error": {"code": "...", "message": "..."}}
//
// Validation failures map to 400, exhausted conversation quotas to 429
// with a Retry-After header, everything else to 500.
package api
