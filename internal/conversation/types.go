package conversation

import "time"

// Message roles. A conversation logically alternates user/assistant;
// the pipeline always appends user-then-assistant in that order, but
// alternation is not enforced here.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one persisted conversation turn. Immutable once saved;
// ordered within a conversation by creation time.
type Message struct {
	Role      string
	Content   string
	Agent     string // responder tag for assistant messages, empty otherwise
	CreatedAt time.Time
}

// RateLimitStatus is the outcome of a sliding-window rate check.
// Derived per request from message history, never stored.
type RateLimitStatus struct {
	Allowed   bool
	Remaining int
}
