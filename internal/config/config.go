// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, secrets)
//  2. Config file (~/.copines/config.yaml or ./config.yaml)
//  3. Default values (matching the production deployment)
//
// Main configuration categories:
//   - Models: OpenRouter model identifiers per role, temperatures, token budgets
//   - RAG: embedding model/dimension, similarity threshold, rerank depth
//   - Conversation: history window, sliding-window rate limit
//   - Storage: PostgreSQL connection (see storage.go)
//
// Security: API keys and the database password are masked in MarshalJSON
// and String. Validation is fail-fast with sentinel errors so callers can
// branch with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidTemperature indicates a temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates a token budget is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidModelName indicates a model identifier is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidThreshold indicates the similarity threshold is outside [0,1].
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidRetrievalDepth indicates a retrieval count is not positive.
	ErrInvalidRetrievalDepth = errors.New("invalid retrieval depth")

	// ErrInvalidRateLimit indicates the rate-limit window or count is not positive.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// Default model identifiers, matching the production deployment.
const (
	DefaultOrchestratorModel = "anthropic/claude-3-haiku"
	DefaultAudreyModel       = "anthropic/claude-3.5-sonnet"
	DefaultCaroleModel       = "anthropic/claude-3.5-sonnet"
	DefaultFallbackModel     = "openai/gpt-4o-mini"

	// DefaultEmbeddingModel is the OpenAI embedding model; its vectors
	// must match the dimension of the knowledge_chunks schema.
	DefaultEmbeddingModel     = "text-embedding-3-small"
	DefaultEmbeddingDimension = 1536

	DefaultRerankModel = "rerank-multilingual-v3.0"
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys), update MarshalJSON.
type Config struct {
	// OpenRouter chat-completion gateway
	OpenRouterAPIKey  string `mapstructure:"openrouter_api_key" json:"openrouter_api_key"` // SENSITIVE: masked in MarshalJSON
	OpenRouterBaseURL string `mapstructure:"openrouter_base_url" json:"openrouter_base_url"`

	// Model selection per role
	OrchestratorModel string `mapstructure:"orchestrator_model" json:"orchestrator_model"`
	AudreyModel       string `mapstructure:"audrey_model" json:"audrey_model"`
	CaroleModel       string `mapstructure:"carole_model" json:"carole_model"`
	FallbackModel     string `mapstructure:"fallback_model" json:"fallback_model"`

	// Sampling and output budgets
	OrchestratorTemperature float32 `mapstructure:"orchestrator_temperature" json:"orchestrator_temperature"`
	AgentTemperature        float32 `mapstructure:"agent_temperature" json:"agent_temperature"`
	OrchestratorMaxTokens   int     `mapstructure:"orchestrator_max_tokens" json:"orchestrator_max_tokens"`
	AgentMaxTokens          int     `mapstructure:"agent_max_tokens" json:"agent_max_tokens"`

	// Embeddings (OpenAI)
	OpenAIAPIKey       string `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE: masked in MarshalJSON
	EmbeddingModel     string `mapstructure:"embedding_model" json:"embedding_model"`
	EmbeddingDimension int    `mapstructure:"embedding_dimension" json:"embedding_dimension"`

	// Reranking (Cohere)
	CohereAPIKey  string `mapstructure:"cohere_api_key" json:"cohere_api_key"` // SENSITIVE: masked in MarshalJSON
	CohereBaseURL string `mapstructure:"cohere_base_url" json:"cohere_base_url"`
	RerankModel   string `mapstructure:"rerank_model" json:"rerank_model"`

	// RAG retrieval tuning
	RAGSimilarityThreshold float32 `mapstructure:"rag_similarity_threshold" json:"rag_similarity_threshold"`
	RAGInitialResults      int     `mapstructure:"rag_initial_results" json:"rag_initial_results"`
	RAGRerankTopN          int     `mapstructure:"rag_rerank_top_n" json:"rag_rerank_top_n"`

	// Conversation history and sliding-window rate limit
	MaxHistoryMessages     int `mapstructure:"max_history_messages" json:"max_history_messages"`
	RateLimitMessages      int `mapstructure:"rate_limit_messages" json:"rate_limit_messages"`
	RateLimitWindowSeconds int `mapstructure:"rate_limit_window_seconds" json:"rate_limit_window_seconds"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server
	Host        string   `mapstructure:"host" json:"host"`
	Port        int      `mapstructure:"port" json:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For (set true behind reverse proxy)
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".copines")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v)
	bindEnvVariables(v)

	// Read configuration file (if it exists)
	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail fast on invalid values
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// OpenRouter defaults
	v.SetDefault("openrouter_base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("orchestrator_model", DefaultOrchestratorModel)
	v.SetDefault("audrey_model", DefaultAudreyModel)
	v.SetDefault("carole_model", DefaultCaroleModel)
	v.SetDefault("fallback_model", DefaultFallbackModel)
	v.SetDefault("orchestrator_temperature", 0.3)
	v.SetDefault("agent_temperature", 0.7)
	v.SetDefault("orchestrator_max_tokens", 200)
	v.SetDefault("agent_max_tokens", 1000)

	// Embedding defaults
	v.SetDefault("embedding_model", DefaultEmbeddingModel)
	v.SetDefault("embedding_dimension", DefaultEmbeddingDimension)

	// Rerank defaults
	v.SetDefault("cohere_base_url", "https://api.cohere.com")
	v.SetDefault("rerank_model", DefaultRerankModel)

	// RAG defaults
	v.SetDefault("rag_similarity_threshold", 0.7)
	v.SetDefault("rag_initial_results", 20)
	v.SetDefault("rag_rerank_top_n", 3)

	// Conversation defaults
	v.SetDefault("max_history_messages", 10)
	v.SetDefault("rate_limit_messages", 10)
	v.SetDefault("rate_limit_window_seconds", 60)

	// PostgreSQL defaults for local development
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "copines")
	v.SetDefault("postgres_password", "copines_dev_password")
	v.SetDefault("postgres_db_name", "copines")
	v.SetDefault("postgres_ssl_mode", "disable")

	// HTTP defaults
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("trust_proxy", false)
}

// bindEnvVariables binds sensitive environment variables explicitly.
// Secrets are never written to the config file:
//  1. OPENROUTER_API_KEY - chat completions
//  2. OPENAI_API_KEY - embeddings
//  3. COHERE_API_KEY - reranking
//
// DATABASE_URL is read directly in parseDatabaseURL, not via Viper.
func bindEnvVariables(v *viper.Viper) {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("openrouter_api_key", "OPENROUTER_API_KEY")
	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("cohere_api_key", "COHERE_API_KEY")

	// Deployment overrides
	mustBind("host", "COPINES_HOST")
	mustBind("port", "COPINES_PORT")
	mustBind("cors_origins", "COPINES_CORS_ORIGINS")
	mustBind("trust_proxy", "COPINES_TRUST_PROXY")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches against real
// secret material in log output.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked; longer secrets show
// the first and last 2 characters for debug utility.
//
// THREAT MODEL: this defends against accidental logging of real secrets.
// If logs are compromised, rotate the secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - OpenRouterAPIKey, OpenAIAPIKey, CohereAPIKey
//   - PostgresPassword
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.OpenRouterAPIKey = maskSecret(a.OpenRouterAPIKey)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
	a.CohereAPIKey = maskSecret(a.CohereAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
