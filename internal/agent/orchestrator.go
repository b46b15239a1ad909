package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agencecopines/chatbot/internal/llm"
)

// historyContextTurns is how many trailing history turns are rendered
// into the orchestrator prompt.
const historyContextTurns = 5

// historyTurnRunes bounds each rendered history turn to keep the
// orchestrator prompt small.
const historyTurnRunes = 100

// OrchestratorConfig configures the routing call.
type OrchestratorConfig struct {
	Model       string
	Temperature float32 // low, favoring determinism
	MaxTokens   int     // small output budget, the decision is tiny
}

// Orchestrator decides which responder should answer a message.
type Orchestrator struct {
	completer Completer
	cfg       OrchestratorConfig
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(completer Completer, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{completer: completer, cfg: cfg, logger: logger}
}

// fallbackDecision is returned whenever the model's output cannot be
// used. Deterministic escalation is the sole error-recovery path; the
// orchestration call itself is never retried.
func fallbackDecision() Decision {
	return Decision{
		Agent:       AgentEscalate,
		Confidence:  0.0,
		PrimaryNeed: "parsing error",
		Reasoning:   "Impossible de parser la réponse de l'orchestrateur",
	}
}

// Decide asks the routing model which agent should answer userMessage
// given the recent history. It never returns an error: any failure
// (gateway error, non-JSON output, out-of-range values) yields the fixed
// escalation fallback.
func (o *Orchestrator) Decide(ctx context.Context, userMessage string, history []llm.Message) Decision {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: orchestratorPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(
			"MESSAGE UTILISATEUR: %s\n\nHISTORIQUE RÉCENT:\n%s",
			userMessage, renderHistory(history))},
	}

	raw, err := o.completer.Complete(ctx, messages, llm.CompletionOptions{
		Model:       o.cfg.Model,
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	})
	if err != nil {
		o.logger.Error("orchestration call failed", "error", err)
		return fallbackDecision()
	}

	decision, err := parseDecision(raw)
	if err != nil {
		o.logger.Error("failed to parse orchestrator response",
			"error", err,
			"raw", truncateRunes(raw, 200),
		)
		return fallbackDecision()
	}

	o.logger.Info("orchestrator decision",
		"agent", decision.Agent,
		"confidence", decision.Confidence,
	)
	return decision
}

// parseDecision parses and validates the model's raw output as a
// Decision. The agent value must be one of the three enumerated values
// and confidence must be in [0,1]; anything else is treated the same as
// malformed JSON.
func parseDecision(raw string) (Decision, error) {
	var d Decision
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &d); err != nil {
		return Decision{}, fmt.Errorf("decoding decision: %w", err)
	}
	if !d.Agent.Valid() {
		return Decision{}, fmt.Errorf("unknown agent %q", d.Agent)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return Decision{}, fmt.Errorf("confidence %v outside [0,1]", d.Confidence)
	}
	return d, nil
}

// renderHistory produces the compact history block for the orchestrator
// prompt: the last historyContextTurns turns, each truncated per-turn.
func renderHistory(history []llm.Message) string {
	if len(history) == 0 {
		return "Pas d'historique"
	}

	start := len(history) - historyContextTurns
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	for i, msg := range history[start:] {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(truncateRunes(msg.Content, historyTurnRunes))
		b.WriteString("...")
	}
	return b.String()
}

// truncateRunes truncates s to at most n runes.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
