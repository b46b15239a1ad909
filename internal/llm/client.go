// Package llm provides the chat-completion gateway.
//
// The gateway talks to an OpenRouter-compatible endpoint through the
// go-openai client and implements exactly one piece of resilience
// policy: a single retry against the configured fallback model when the
// upstream answers with a server-side (5xx) status. Client-side and
// network failures propagate unchanged. There is no backoff and no
// circuit breaker; the gateway keeps no state between calls.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Message roles accepted by the completion endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions parameterize a single Complete call.
type CompletionOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// StatusError is returned when the upstream responds with a non-2xx
// status. Callers branch on StatusCode with errors.As.
type StatusError struct {
	StatusCode int
	Model      string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion request for model %q failed with status %d: %s",
		e.Model, e.StatusCode, e.Body)
}

// ErrNoChoices indicates a 2xx response that contained no generated text.
var ErrNoChoices = errors.New("completion response contained no choices")

// defaultTimeout bounds a single completion call, including the body read.
const defaultTimeout = 60 * time.Second

// Config configures a Client.
type Config struct {
	BaseURL       string // e.g. "https://openrouter.ai/api/v1"
	APIKey        string
	FallbackModel string        // model retried once on 5xx failures
	Timeout       time.Duration // per-call timeout; default 60s
	HTTPClient    *http.Client  // optional; a default client is built from Timeout
	Logger        *slog.Logger  // nil = slog.Default()
}

// Client makes chat completions against a named model.
// Safe for concurrent use.
type Client struct {
	api           *openai.Client
	fallbackModel string
	logger        *slog.Logger
}

// attributionTransport adds the OpenRouter attribution headers to every
// outgoing request.
type attributionTransport struct {
	base http.RoundTripper
}

func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("HTTP-Referer", "https://lagencedescopines.com")
	req.Header.Set("X-Title", "L'Agence des Copines Chatbot")
	return t.base.RoundTrip(req) //nolint:wrapcheck // transport errors must stay unwrapped
}

// New creates a completion Client.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *httpClient
	wrapped.Transport = &attributionTransport{base: base}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL
	apiCfg.HTTPClient = &wrapped

	return &Client{
		api:           openai.NewClientWithConfig(apiCfg),
		fallbackModel: cfg.FallbackModel,
		logger:        logger,
	}
}

// Complete sends the full message sequence to the named model and returns
// the generated text.
//
// On a 5xx response, if the failing model is not already the fallback
// model, the request is retried exactly once against the fallback model
// with fallback disabled on the retry. 4xx and network errors propagate
// to the caller without retry.
func (c *Client) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	return c.complete(ctx, messages, opts, true)
}

func (c *Client) complete(ctx context.Context, messages []Message, opts CompletionOptions, useFallback bool) (string, error) {
	text, err := c.createCompletion(ctx, messages, opts)
	if err == nil {
		return text, nil
	}

	var statusErr *StatusError
	if useFallback &&
		errors.As(err, &statusErr) &&
		statusErr.StatusCode >= http.StatusInternalServerError &&
		opts.Model != c.fallbackModel &&
		c.fallbackModel != "" {
		c.logger.Warn("completion failed, retrying with fallback model",
			"model", opts.Model,
			"fallback", c.fallbackModel,
			"status", statusErr.StatusCode,
		)
		opts.Model = c.fallbackModel
		// Fallback disabled on the retry: at most one retry per request.
		return c.complete(ctx, messages, opts, false)
	}

	return "", err
}

// createCompletion performs a single completion request without any
// retry policy.
func (c *Client) createCompletion(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    toWireMessages(messages),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", completionError(opts.Model, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	c.logger.Debug("completion succeeded",
		"model", opts.Model,
		"duration", time.Since(start),
	)
	return resp.Choices[0].Message.Content, nil
}

// completionError converts go-openai errors into the gateway's error
// taxonomy. Non-2xx responses become a *StatusError so the fallback
// policy can branch on the code; everything else (network failures,
// canceled contexts) is wrapped unchanged.
func completionError(model string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &StatusError{
			StatusCode: apiErr.HTTPStatusCode,
			Model:      model,
			Body:       apiErr.Message,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &StatusError{
			StatusCode: reqErr.HTTPStatusCode,
			Model:      model,
			Body:       string(bytes.TrimSpace(reqErr.Body)),
		}
	}

	return fmt.Errorf("calling completion endpoint: %w", err)
}

func toWireMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
