package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/agencecopines/chatbot/internal/agent"
	"github.com/agencecopines/chatbot/internal/conversation"
	"github.com/agencecopines/chatbot/internal/llm"
	"github.com/agencecopines/chatbot/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeOrchestrator struct {
	decision agent.Decision

	gotMessage string
	gotHistory []llm.Message
	calls      int
}

func (f *fakeOrchestrator) Decide(_ context.Context, userMessage string, history []llm.Message) agent.Decision {
	f.calls++
	f.gotMessage = userMessage
	f.gotHistory = history
	return f.decision
}

type fakeResponder struct {
	response string
	err      error

	gotAgent   agent.Agent
	gotContext string
	calls      int
}

func (f *fakeResponder) Respond(_ context.Context, a agent.Agent, _ string, _ []llm.Message, ragContext string) (string, error) {
	f.calls++
	f.gotAgent = a
	f.gotContext = ragContext
	return f.response, f.err
}

type fakeRetriever struct {
	context string

	gotPartition string
	calls        int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, partition string) string {
	f.calls++
	f.gotPartition = partition
	return f.context
}

type savedMessage struct {
	Role    string
	Content string
	Agent   string
}

type fakeStore struct {
	mu sync.Mutex

	rateStatus conversation.RateLimitStatus
	history    []conversation.Message
	ensureErr  error
	saveErr    error

	rateCalls   int
	ensureCalls int
	saved       []savedMessage
}

func (f *fakeStore) CheckRateLimit(_ context.Context, _ string) conversation.RateLimitStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateCalls++
	return f.rateStatus
}

func (f *fakeStore) EnsureConversation(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	return f.ensureErr
}

func (f *fakeStore) LoadHistory(_ context.Context, _ string, _ int) []conversation.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history
}

func (f *fakeStore) SaveMessage(_ context.Context, _, role, content, agentTag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, savedMessage{Role: role, Content: content, Agent: agentTag})
	return f.saveErr
}

func (f *fakeStore) savedMessages() []savedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]savedMessage(nil), f.saved...)
}

func allowAll() conversation.RateLimitStatus {
	return conversation.RateLimitStatus{Allowed: true, Remaining: 10}
}

func audreyDecision() agent.Decision {
	return agent.Decision{
		Agent:       agent.AgentAudrey,
		Confidence:  0.9,
		PrimaryNeed: "tunnel de vente",
		Reasoning:   "question marketing",
	}
}

func validRequest() Request {
	return Request{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Message:        "Comment créer un tunnel de vente ?",
	}
}

func newTestPipeline(o Orchestrator, r Responder, ret Retriever, cs ConversationStore) *Pipeline {
	return NewPipeline(o, r, ret, cs, Config{MaxHistoryMessages: 10}, log.NewNop())
}

func TestSend_FullFlow(t *testing.T) {
	orch := &fakeOrchestrator{decision: audreyDecision()}
	resp := &fakeResponder{response: "Voici comment créer ton tunnel..."}
	ret := &fakeRetriever{context: "📚 Source 1: guide.md"}
	store := &fakeStore{rateStatus: allowAll()}

	p := newTestPipeline(orch, resp, ret, store)

	out, err := p.Send(context.Background(), validRequest())
	require.NoError(t, err)
	p.waitPersistence()

	assert.Equal(t, "conv-1", out.ConversationID)
	assert.Equal(t, "Voici comment créer ton tunnel...", out.Message)
	assert.Equal(t, agent.AgentAudrey, out.Agent)
	assert.InDelta(t, 0.9, out.Confidence, 1e-9)
	assert.Equal(t, "question marketing", out.Reasoning)
	assert.WithinDuration(t, time.Now().UTC(), out.Timestamp, 5*time.Second)

	assert.Equal(t, "audrey", ret.gotPartition, "retrieval runs against the chosen agent's partition")
	assert.Equal(t, agent.AgentAudrey, resp.gotAgent)
	assert.Equal(t, "📚 Source 1: guide.md", resp.gotContext)

	saved := store.savedMessages()
	require.Len(t, saved, 2)
	assert.Equal(t, savedMessage{Role: conversation.RoleUser, Content: validRequest().Message, Agent: ""}, saved[0])
	assert.Equal(t, savedMessage{Role: conversation.RoleAssistant, Content: out.Message, Agent: "audrey"}, saved[1])
}

func TestSend_ValidationRejectsBeforeAnyDownstreamCall(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"missing user id", Request{ConversationID: "c", Message: "salut"}},
		{"missing conversation id", Request{UserID: "u", Message: "salut"}},
		{"empty message", Request{UserID: "u", ConversationID: "c"}},
		{"oversized message", Request{UserID: "u", ConversationID: "c", Message: strings.Repeat("a", 2001)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := &fakeOrchestrator{decision: audreyDecision()}
			store := &fakeStore{rateStatus: allowAll()}
			p := newTestPipeline(orch, &fakeResponder{}, &fakeRetriever{}, store)

			_, err := p.Send(context.Background(), tt.req)

			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Equal(t, 0, store.rateCalls, "no store call on invalid input")
			assert.Equal(t, 0, orch.calls, "no model call on invalid input")
		})
	}
}

func TestSend_MessageAtLimitAccepted(t *testing.T) {
	// 2000 multibyte characters are exactly at the limit.
	req := validRequest()
	req.Message = strings.Repeat("é", 2000)

	store := &fakeStore{rateStatus: allowAll()}
	p := newTestPipeline(
		&fakeOrchestrator{decision: audreyDecision()},
		&fakeResponder{response: "ok"},
		&fakeRetriever{},
		store,
	)

	_, err := p.Send(context.Background(), req)
	require.NoError(t, err)
	p.waitPersistence()
}

func TestSend_RateLimited(t *testing.T) {
	orch := &fakeOrchestrator{decision: audreyDecision()}
	store := &fakeStore{rateStatus: conversation.RateLimitStatus{Allowed: false, Remaining: 0}}
	p := newTestPipeline(orch, &fakeResponder{}, &fakeRetriever{}, store)

	_, err := p.Send(context.Background(), validRequest())

	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 0, rateErr.Remaining)
	assert.Equal(t, 0, orch.calls, "no decision call when the window is exhausted")
	assert.Empty(t, store.savedMessages(), "nothing is persisted for a rejected turn")
}

func TestSend_EscalationSkipsRetrievalAndGeneration(t *testing.T) {
	orch := &fakeOrchestrator{decision: agent.Decision{
		Agent:      agent.AgentEscalate,
		Confidence: 0.3,
		Reasoning:  "demande ambiguë",
	}}
	resp := &fakeResponder{}
	ret := &fakeRetriever{}
	store := &fakeStore{rateStatus: allowAll()}

	p := newTestPipeline(orch, resp, ret, store)

	out, err := p.Send(context.Background(), validRequest())
	require.NoError(t, err)
	p.waitPersistence()

	assert.Equal(t, agent.EscalationMessage, out.Message)
	assert.Equal(t, agent.AgentEscalate, out.Agent)
	assert.Equal(t, 0, ret.calls, "no retrieval on escalation")
	assert.Equal(t, 0, resp.calls, "no generation on escalation")

	saved := store.savedMessages()
	require.Len(t, saved, 2)
	assert.Equal(t, "escalate", saved[1].Agent)
}

func TestSend_ResponderErrorPropagates(t *testing.T) {
	wantErr := errors.New("all models down")
	store := &fakeStore{rateStatus: allowAll()}
	p := newTestPipeline(
		&fakeOrchestrator{decision: audreyDecision()},
		&fakeResponder{err: wantErr},
		&fakeRetriever{},
		store,
	)

	_, err := p.Send(context.Background(), validRequest())

	assert.ErrorIs(t, err, wantErr)
	assert.Empty(t, store.savedMessages(), "failed turns are not persisted")
}

func TestSend_EnsureConversationFailureDoesNotBlock(t *testing.T) {
	store := &fakeStore{
		rateStatus: allowAll(),
		ensureErr:  errors.New("db hiccup"),
	}
	p := newTestPipeline(
		&fakeOrchestrator{decision: audreyDecision()},
		&fakeResponder{response: "réponse"},
		&fakeRetriever{},
		store,
	)

	out, err := p.Send(context.Background(), validRequest())
	require.NoError(t, err)
	p.waitPersistence()

	assert.Equal(t, "réponse", out.Message)
}

func TestSend_PersistenceFailureIsInvisible(t *testing.T) {
	store := &fakeStore{
		rateStatus: allowAll(),
		saveErr:    errors.New("db down"),
	}
	p := newTestPipeline(
		&fakeOrchestrator{decision: audreyDecision()},
		&fakeResponder{response: "réponse"},
		&fakeRetriever{},
		store,
	)

	out, err := p.Send(context.Background(), validRequest())
	require.NoError(t, err)
	p.waitPersistence()

	assert.Equal(t, "réponse", out.Message)
}

func TestSend_PersistenceSurvivesCallerCancellation(t *testing.T) {
	store := &fakeStore{rateStatus: allowAll()}
	p := newTestPipeline(
		&fakeOrchestrator{decision: audreyDecision()},
		&fakeResponder{response: "réponse"},
		&fakeRetriever{},
		store,
	)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := p.Send(ctx, validRequest())
	require.NoError(t, err)

	// The request context dying must not cancel the detached writes.
	cancel()
	p.waitPersistence()

	assert.Len(t, store.savedMessages(), 2)
}

func TestSend_HistoryPassedToOrchestrator(t *testing.T) {
	orch := &fakeOrchestrator{decision: audreyDecision()}
	store := &fakeStore{
		rateStatus: allowAll(),
		history: []conversation.Message{
			{Role: conversation.RoleUser, Content: "bonjour"},
			{Role: conversation.RoleAssistant, Content: "salut !", Agent: "audrey"},
		},
	}
	p := newTestPipeline(orch, &fakeResponder{response: "ok"}, &fakeRetriever{}, store)

	_, err := p.Send(context.Background(), validRequest())
	require.NoError(t, err)
	p.waitPersistence()

	require.Len(t, orch.gotHistory, 2)
	assert.Equal(t, llm.Message{Role: "user", Content: "bonjour"}, orch.gotHistory[0])
	assert.Equal(t, llm.Message{Role: "assistant", Content: "salut !"}, orch.gotHistory[1])
}

func TestValidate_Boundaries(t *testing.T) {
	req := validRequest()
	req.Message = strings.Repeat("a", 2000)
	assert.NoError(t, validate(req))

	req.Message = strings.Repeat("a", 2001)
	assert.Error(t, validate(req))

	req.Message = "a"
	assert.NoError(t, validate(req))
}

func TestRateLimitError_Message(t *testing.T) {
	err := &RateLimitError{Remaining: 3}
	assert.Contains(t, err.Error(), "3")
}
