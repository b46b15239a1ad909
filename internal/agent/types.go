// Package agent implements the orchestration decision and the two
// specialist responder personas.
//
// The orchestrator asks a small model which persona should answer a
// message, expecting a strict JSON decision object back. The responders
// generate the actual answer with their persona prompt plus the
// retrieved knowledge context. All user-facing persona text is French
// domain content and can be swapped per deployment.
package agent

import (
	"context"

	"github.com/agencecopines/chatbot/internal/llm"
)

// Agent identifies a responder persona, or the escalation path.
type Agent string

// The fixed set of routing targets.
const (
	// AgentAudrey is the automation and sales-funnel expert.
	AgentAudrey Agent = "audrey"

	// AgentCarole is the Instagram content-creation expert.
	AgentCarole Agent = "carole"

	// AgentEscalate is the low-confidence escalation path; no responder
	// or retrieval runs for it.
	AgentEscalate Agent = "escalate"
)

// Valid reports whether a is one of the three enumerated values.
func (a Agent) Valid() bool {
	switch a {
	case AgentAudrey, AgentCarole, AgentEscalate:
		return true
	}
	return false
}

// Decision is the orchestrator's routing output for one request.
// It is never persisted; only its effects are returned to the caller.
type Decision struct {
	Agent       Agent   `json:"agent"`
	Confidence  float64 `json:"confidence"` // always in [0,1]
	PrimaryNeed string  `json:"primary_need"`
	Reasoning   string  `json:"reasoning"`
}

// Completer makes chat completions against a named model.
// *llm.Client implements it; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (string, error)
}
