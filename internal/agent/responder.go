package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agencecopines/chatbot/internal/llm"
)

// ResponderConfig configures persona generation.
type ResponderConfig struct {
	AudreyModel string
	CaroleModel string
	Temperature float32
	MaxTokens   int

	// MaxHistoryMessages bounds how many trailing history turns are
	// replayed into the persona prompt.
	MaxHistoryMessages int
}

// Responder generates persona answers through the completion gateway.
type Responder struct {
	completer Completer
	cfg       ResponderConfig
	logger    *slog.Logger
}

// NewResponder creates a Responder.
func NewResponder(completer Completer, cfg ResponderConfig, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{completer: completer, cfg: cfg, logger: logger}
}

// Respond generates the chosen persona's answer to userMessage, with the
// retrieved knowledge context injected verbatim into its system prompt.
// AgentEscalate is not a persona; routing it here is a caller bug.
func (r *Responder) Respond(ctx context.Context, a Agent, userMessage string, history []llm.Message, ragContext string) (string, error) {
	var (
		prompt string
		model  string
	)
	switch a {
	case AgentAudrey:
		prompt = audreyPrompt
		model = r.cfg.AudreyModel
	case AgentCarole:
		prompt = carolePrompt
		model = r.cfg.CaroleModel
	default:
		return "", fmt.Errorf("agent %q has no responder persona", a)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf(prompt, ragContext),
	})

	start := 0
	if r.cfg.MaxHistoryMessages > 0 && len(history) > r.cfg.MaxHistoryMessages {
		start = len(history) - r.cfg.MaxHistoryMessages
	}
	messages = append(messages, history[start:]...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})

	text, err := r.completer.Complete(ctx, messages, llm.CompletionOptions{
		Model:       model,
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generating %s response: %w", a, err)
	}

	r.logger.Debug("persona response generated", "agent", a, "length", len(text))
	return text, nil
}
