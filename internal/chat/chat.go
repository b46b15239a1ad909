// Package chat implements the request pipeline for one chat turn:
// rate check, history load, orchestration decision, per-responder
// retrieval and generation, and detached persistence of both turns.
//
// Failure policy follows two tiers. Optional-enhancement stages (rate
// check, history, retrieval, persistence) degrade gracefully and never
// prevent a response. Load-bearing stages (invalid input, no model
// reachable at all) surface their errors to the caller.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/agencecopines/chatbot/internal/agent"
	"github.com/agencecopines/chatbot/internal/conversation"
	"github.com/agencecopines/chatbot/internal/llm"
)

// MaxMessageLength is the maximum accepted message size in characters.
const MaxMessageLength = 2000

// persistTimeout bounds the detached write of the two conversation
// turns after the response is already on its way to the caller.
const persistTimeout = 10 * time.Second

// ErrInvalidRequest indicates client input rejected before pipeline
// entry (empty or over-length message, missing identifiers).
var ErrInvalidRequest = errors.New("invalid chat request")

// RateLimitError is returned when the conversation's sliding window is
// exhausted. Carries the remaining quota for the client.
type RateLimitError struct {
	Remaining int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, remaining quota %d", e.Remaining)
}

// Request is one inbound chat turn.
type Request struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	Timestamp      string `json:"timestamp,omitempty"` // optional client timestamp, echoed nowhere, accepted for widget compatibility
}

// Response is the answer envelope for one chat turn.
type Response struct {
	ConversationID string      `json:"conversation_id"`
	Message        string      `json:"message"`
	Agent          agent.Agent `json:"agent"`
	Confidence     float64     `json:"confidence"`
	Reasoning      string      `json:"reasoning"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Orchestrator decides which responder should answer.
type Orchestrator interface {
	Decide(ctx context.Context, userMessage string, history []llm.Message) agent.Decision
}

// Responder generates a persona answer.
type Responder interface {
	Respond(ctx context.Context, a agent.Agent, userMessage string, history []llm.Message, ragContext string) (string, error)
}

// Retriever runs the knowledge retrieval pipeline for a partition.
type Retriever interface {
	Retrieve(ctx context.Context, query, partition string) string
}

// ConversationStore is the persistence and rate-limit gateway.
type ConversationStore interface {
	CheckRateLimit(ctx context.Context, conversationID string) conversation.RateLimitStatus
	EnsureConversation(ctx context.Context, conversationID, userID string) error
	LoadHistory(ctx context.Context, conversationID string, limit int) []conversation.Message
	SaveMessage(ctx context.Context, conversationID, role, content, agent string) error
}

// Config tunes the pipeline.
type Config struct {
	MaxHistoryMessages int // history turns loaded per request
}

// Pipeline processes chat turns. Safe for concurrent use; requests for
// different conversations share no state except the external store.
type Pipeline struct {
	orchestrator  Orchestrator
	responder     Responder
	retriever     Retriever
	conversations ConversationStore
	cfg           Config
	logger        *slog.Logger

	// persisting tracks detached persistence goroutines so tests can
	// wait for them; the request path never does.
	persisting sync.WaitGroup
}

// NewPipeline creates a Pipeline.
func NewPipeline(o Orchestrator, r Responder, ret Retriever, cs ConversationStore, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		orchestrator:  o,
		responder:     r,
		retriever:     ret,
		conversations: cs,
		cfg:           cfg,
		logger:        logger,
	}
}

// Send processes one chat turn and returns the response envelope.
//
// Persistence of the two resulting messages happens after the response
// value is computed, in a detached goroutine whose outcome is only
// logged. The caller never waits on the writes.
func (p *Pipeline) Send(ctx context.Context, req Request) (Response, error) {
	if err := validate(req); err != nil {
		return Response{}, err
	}

	// Rate check. The store fails open internally; a denial here is a
	// genuine exhausted window.
	status := p.conversations.CheckRateLimit(ctx, req.ConversationID)
	if !status.Allowed {
		p.logger.Warn("rate limit exceeded",
			"conversation_id", req.ConversationID,
			"remaining", status.Remaining,
		)
		return Response{}, &RateLimitError{Remaining: status.Remaining}
	}

	// Create-if-absent is advisory: a failure here must not block the
	// turn, message persistence is already best-effort.
	if err := p.conversations.EnsureConversation(ctx, req.ConversationID, req.UserID); err != nil {
		p.logger.Error("ensuring conversation failed, continuing", "error", err)
	}

	history := toLLMMessages(p.conversations.LoadHistory(ctx, req.ConversationID, p.cfg.MaxHistoryMessages))

	decision := p.orchestrator.Decide(ctx, req.Message, history)

	var text string
	if decision.Agent == agent.AgentEscalate {
		// No retrieval and no generation on escalation.
		p.logger.Info("message escalated",
			"conversation_id", req.ConversationID,
			"confidence", decision.Confidence,
		)
		text = agent.EscalationMessage
	} else {
		ragContext := p.retriever.Retrieve(ctx, req.Message, string(decision.Agent))

		var err error
		text, err = p.responder.Respond(ctx, decision.Agent, req.Message, history, ragContext)
		if err != nil {
			// Load-bearing failure: no responder output means no answer.
			return Response{}, fmt.Errorf("responder %s failed: %w", decision.Agent, err)
		}
	}

	// Detached persistence: scheduled after the response value is
	// ready, never awaited by the request path.
	p.persisting.Add(1)
	go p.persistTurns(context.WithoutCancel(ctx), req.ConversationID, req.Message, text, string(decision.Agent))

	return Response{
		ConversationID: req.ConversationID,
		Message:        text,
		Agent:          decision.Agent,
		Confidence:     decision.Confidence,
		Reasoning:      decision.Reasoning,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// persistTurns writes the user turn then the assistant turn, in that
// order so the conversation's timeline stays logically alternating.
// Failures are logged, never surfaced.
func (p *Pipeline) persistTurns(ctx context.Context, conversationID, userMessage, assistantMessage, agentTag string) {
	defer p.persisting.Done()

	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	if err := p.conversations.SaveMessage(ctx, conversationID, conversation.RoleUser, userMessage, ""); err != nil {
		p.logger.Error("persisting user turn failed", "error", err)
	}
	if err := p.conversations.SaveMessage(ctx, conversationID, conversation.RoleAssistant, assistantMessage, agentTag); err != nil {
		p.logger.Error("persisting assistant turn failed", "error", err)
	}
}

// waitPersistence blocks until all detached persistence goroutines have
// finished. Test hook; production code never waits.
func (p *Pipeline) waitPersistence() {
	p.persisting.Wait()
}

// validate rejects client input before any downstream call is made.
func validate(req Request) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if req.ConversationID == "" {
		return fmt.Errorf("%w: conversation_id is required", ErrInvalidRequest)
	}
	if req.Message == "" {
		return fmt.Errorf("%w: message must not be empty", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(req.Message) > MaxMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters", ErrInvalidRequest, MaxMessageLength)
	}
	return nil
}

// toLLMMessages converts persisted history to gateway messages.
func toLLMMessages(history []conversation.Message) []llm.Message {
	if len(history) == 0 {
		return nil
	}
	out := make([]llm.Message, len(history))
	for i, m := range history {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
