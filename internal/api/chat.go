package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/agencecopines/chatbot/internal/chat"
	"github.com/agencecopines/chatbot/internal/conversation"
)

// maxRequestBody bounds inbound JSON bodies. Chat messages top out at
// 2000 characters, so 64 KiB leaves ample room for the envelope.
const maxRequestBody = 64 << 10

// ChatService processes one chat turn.
type ChatService interface {
	Send(ctx context.Context, req chat.Request) (chat.Response, error)
}

// RateLimitChecker exposes the per-conversation message window.
type RateLimitChecker interface {
	CheckRateLimit(ctx context.Context, conversationID string) conversation.RateLimitStatus
	Limit() int
	Window() time.Duration
}

// chatHandler serves the chat and rate-limit endpoints.
type chatHandler struct {
	service ChatService
	limits  RateLimitChecker
	logger  *slog.Logger
}

// send handles POST /api/chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	dec := json.NewDecoder(r.Body)

	var req chat.Request
	if err := dec.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	// Reject trailing garbage after the JSON object.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	resp, err := h.service.Send(r.Context(), req)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, resp, h.logger)
}

// writeChatError maps pipeline errors to HTTP responses.
func (h *chatHandler) writeChatError(w http.ResponseWriter, err error) {
	var rateErr *chat.RateLimitError
	switch {
	case errors.Is(err, chat.ErrInvalidRequest):
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", "60")
		WriteError(w, http.StatusTooManyRequests, "rate_limited",
			fmt.Sprintf("message quota exhausted for this conversation, remaining: %d", rateErr.Remaining),
			h.logger)
	default:
		h.logger.Error("chat turn failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "chat_failed", "failed to process message", h.logger)
	}
}

// rateLimitStatus handles GET /api/rate-limit/{conversation_id}.
func (h *chatHandler) rateLimitStatus(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversation_id")
	if conversationID == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "conversation_id is required", h.logger)
		return
	}

	status := h.limits.CheckRateLimit(r.Context(), conversationID)
	WriteJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"allowed":         status.Allowed,
		"remaining":       status.Remaining,
		"limit":           h.limits.Limit(),
		"window_seconds":  int(h.limits.Window().Seconds()),
	}, h.logger)
}

// serviceInfo handles GET / for widget discovery.
func serviceInfo(version string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"service": "L'Agence des Copines Chatbot API",
			"version": version,
			"status":  "running",
			"agents":  []string{"audrey", "carole"},
			"endpoints": map[string]string{
				"chat":       "POST /api/chat",
				"rate_limit": "GET /api/rate-limit/{conversation_id}",
				"health":     "GET /health",
			},
		}, logger)
	}
}
