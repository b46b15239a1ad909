package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agencecopines/chatbot/internal/agent"
	"github.com/agencecopines/chatbot/internal/chat"
	"github.com/agencecopines/chatbot/internal/conversation"
)

type fakeChatService struct {
	resp chat.Response
	err  error

	gotReq chat.Request
	calls  int
}

func (f *fakeChatService) Send(_ context.Context, req chat.Request) (chat.Response, error) {
	f.calls++
	f.gotReq = req
	return f.resp, f.err
}

type fakeLimits struct {
	status conversation.RateLimitStatus
}

func (f *fakeLimits) CheckRateLimit(context.Context, string) conversation.RateLimitStatus {
	return f.status
}

func (f *fakeLimits) Limit() int { return 10 }

func (f *fakeLimits) Window() time.Duration { return time.Minute }

func allConfigured() HealthConfig {
	return HealthConfig{
		StorageConfigured:    true,
		OpenRouterConfigured: true,
		OpenAIConfigured:     true,
		CohereConfigured:     true,
	}
}

func newTestServer(t *testing.T, svc ChatService, limits RateLimitChecker, health HealthConfig) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Logger:      discardLogger(),
		Service:     svc,
		Limits:      limits,
		Health:      health,
		Version:     "test",
		CORSOrigins: []string{"*"},
	})
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	return srv
}

func TestNewServer_RequiresService(t *testing.T) {
	_, err := NewServer(ServerConfig{Limits: &fakeLimits{}})
	if err == nil {
		t.Error("NewServer() should fail without a chat service")
	}

	_, err = NewServer(ServerConfig{Service: &fakeChatService{}})
	if err == nil {
		t.Error("NewServer() should fail without a rate limit checker")
	}
}

func TestChatEndpoint_Success(t *testing.T) {
	svc := &fakeChatService{resp: chat.Response{
		ConversationID: "conv-1",
		Message:        "Bonjour !",
		Agent:          agent.AgentAudrey,
		Confidence:     0.9,
	}}
	srv := newTestServer(t, svc, &fakeLimits{}, allConfigured())

	body := `{"user_id":"u1","conversation_id":"conv-1","message":"salut"}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp chat.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Message != "Bonjour !" || resp.Agent != agent.AgentAudrey {
		t.Errorf("response = %+v", resp)
	}
	if svc.gotReq.Message != "salut" {
		t.Errorf("service received %+v", svc.gotReq)
	}
}

func TestChatEndpoint_InvalidBody(t *testing.T) {
	srv := newTestServer(t, &fakeChatService{}, &fakeLimits{}, allConfigured())

	for _, body := range []string{"", "not json", `{"user_id":1}`, `{"user_id":"u"} trailing`} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
		srv.Handler().ServeHTTP(w, r)

		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestChatEndpoint_ValidationError(t *testing.T) {
	svc := &fakeChatService{err: chat.ErrInvalidRequest}
	srv := newTestServer(t, svc, &fakeLimits{}, allConfigured())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"x"}`))
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestChatEndpoint_RateLimited(t *testing.T) {
	svc := &fakeChatService{err: &chat.RateLimitError{Remaining: 3}}
	srv := newTestServer(t, svc, &fakeLimits{}, allConfigured())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"user_id":"u","conversation_id":"c","message":"salut"}`))
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Error.Code != "rate_limited" {
		t.Errorf("code = %q", resp.Error.Code)
	}
	if !strings.Contains(resp.Error.Message, "remaining: 3") {
		t.Errorf("message %q does not carry the remaining quota", resp.Error.Message)
	}
}

func TestChatEndpoint_InternalError(t *testing.T) {
	svc := &fakeChatService{err: context.DeadlineExceeded}
	srv := newTestServer(t, svc, &fakeLimits{}, allConfigured())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"user_id":"u","conversation_id":"c","message":"salut"}`))
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestRateLimitEndpoint(t *testing.T) {
	limits := &fakeLimits{status: conversation.RateLimitStatus{Allowed: true, Remaining: 7}}
	srv := newTestServer(t, &fakeChatService{}, limits, allConfigured())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/rate-limit/conv-42", nil)
	srv.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp["conversation_id"] != "conv-42" {
		t.Errorf("conversation_id = %v", resp["conversation_id"])
	}
	if resp["remaining"] != float64(7) {
		t.Errorf("remaining = %v", resp["remaining"])
	}
	if resp["allowed"] != true {
		t.Errorf("allowed = %v", resp["allowed"])
	}
	if resp["limit"] != float64(10) {
		t.Errorf("limit = %v", resp["limit"])
	}
	if resp["window_seconds"] != float64(60) {
		t.Errorf("window_seconds = %v", resp["window_seconds"])
	}
}

func TestHealthEndpoint_Healthy(t *testing.T) {
	srv := newTestServer(t, &fakeChatService{}, &fakeLimits{}, allConfigured())

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if len(resp.Services) != 4 {
		t.Errorf("services = %v, want 4 entries", resp.Services)
	}
}

func TestHealthEndpoint_Degraded(t *testing.T) {
	health := allConfigured()
	health.CohereConfigured = false
	srv := newTestServer(t, &fakeChatService{}, &fakeLimits{}, health)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Services["cohere"] != "not_configured" {
		t.Errorf("cohere = %q", resp.Services["cohere"])
	}
}

func TestReadyEndpoint_NoPool(t *testing.T) {
	srv := newTestServer(t, &fakeChatService{}, &fakeLimits{}, allConfigured())

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 without a pool", w.Code)
	}
}

func TestServiceInfoEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeChatService{}, &fakeLimits{}, allConfigured())

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v", resp["version"])
	}
	if resp["status"] != "running" {
		t.Errorf("status = %v", resp["status"])
	}
	agents, ok := resp["agents"].([]any)
	if !ok || len(agents) != 2 {
		t.Errorf("agents = %v, want two entries", resp["agents"])
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	srv := newTestServer(t, &fakeChatService{}, &fakeLimits{}, allConfigured())

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
