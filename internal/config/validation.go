package config

import (
	"fmt"
	"strings"
)

// validSSLModes are the PostgreSQL sslmode values accepted by pgx.
var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Validate checks all configuration values for structural validity.
// It does not require secrets to be present; ValidateServe does.
func (c *Config) Validate() error {
	for _, m := range []struct {
		name, value string
	}{
		{"orchestrator_model", c.OrchestratorModel},
		{"audrey_model", c.AudreyModel},
		{"carole_model", c.CaroleModel},
		{"fallback_model", c.FallbackModel},
		{"embedding_model", c.EmbeddingModel},
		{"rerank_model", c.RerankModel},
	} {
		if strings.TrimSpace(m.value) == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidModelName, m.name)
		}
	}

	if c.OrchestratorTemperature < 0 || c.OrchestratorTemperature > 2 {
		return fmt.Errorf("%w: orchestrator_temperature %.2f (must be 0.0-2.0)",
			ErrInvalidTemperature, c.OrchestratorTemperature)
	}
	if c.AgentTemperature < 0 || c.AgentTemperature > 2 {
		return fmt.Errorf("%w: agent_temperature %.2f (must be 0.0-2.0)",
			ErrInvalidTemperature, c.AgentTemperature)
	}

	if c.OrchestratorMaxTokens <= 0 {
		return fmt.Errorf("%w: orchestrator_max_tokens %d (must be > 0)",
			ErrInvalidMaxTokens, c.OrchestratorMaxTokens)
	}
	if c.AgentMaxTokens <= 0 {
		return fmt.Errorf("%w: agent_max_tokens %d (must be > 0)",
			ErrInvalidMaxTokens, c.AgentMaxTokens)
	}

	if c.RAGSimilarityThreshold < 0 || c.RAGSimilarityThreshold > 1 {
		return fmt.Errorf("%w: rag_similarity_threshold %.2f (must be 0.0-1.0)",
			ErrInvalidThreshold, c.RAGSimilarityThreshold)
	}
	if c.RAGInitialResults <= 0 {
		return fmt.Errorf("%w: rag_initial_results %d (must be > 0)",
			ErrInvalidRetrievalDepth, c.RAGInitialResults)
	}
	if c.RAGRerankTopN <= 0 {
		return fmt.Errorf("%w: rag_rerank_top_n %d (must be > 0)",
			ErrInvalidRetrievalDepth, c.RAGRerankTopN)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: embedding_dimension %d (must be > 0)",
			ErrInvalidRetrievalDepth, c.EmbeddingDimension)
	}

	if c.MaxHistoryMessages <= 0 {
		return fmt.Errorf("%w: max_history_messages %d (must be > 0)",
			ErrInvalidRateLimit, c.MaxHistoryMessages)
	}
	if c.RateLimitMessages <= 0 {
		return fmt.Errorf("%w: rate_limit_messages %d (must be > 0)",
			ErrInvalidRateLimit, c.RateLimitMessages)
	}
	if c.RateLimitWindowSeconds <= 0 {
		return fmt.Errorf("%w: rate_limit_window_seconds %d (must be > 0)",
			ErrInvalidRateLimit, c.RateLimitWindowSeconds)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d (must be 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}

// ValidateServe checks that everything the HTTP server needs is present,
// on top of Validate. The serve path makes real provider calls, so all
// three API keys are required here and only here.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.OpenRouterAPIKey == "" {
		return fmt.Errorf("%w: OPENROUTER_API_KEY is required", ErrMissingAPIKey)
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY is required", ErrMissingAPIKey)
	}
	if c.CohereAPIKey == "" {
		return fmt.Errorf("%w: COHERE_API_KEY is required", ErrMissingAPIKey)
	}

	return nil
}
