package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/agencecopines/chatbot/db"
	"github.com/agencecopines/chatbot/internal/agent"
	"github.com/agencecopines/chatbot/internal/api"
	"github.com/agencecopines/chatbot/internal/chat"
	"github.com/agencecopines/chatbot/internal/config"
	"github.com/agencecopines/chatbot/internal/conversation"
	"github.com/agencecopines/chatbot/internal/database"
	"github.com/agencecopines/chatbot/internal/knowledge"
	"github.com/agencecopines/chatbot/internal/llm"
	"github.com/agencecopines/chatbot/internal/rag"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // chat turns wait on multiple upstream model calls
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// parseRateBurst reads COPINES_RATE_BURST from the environment.
// Returns 0 (use default) if unset or invalid.
func parseRateBurst() int {
	v := os.Getenv("COPINES_RATE_BURST")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// serveAddr resolves the listen address: an explicit CLI argument wins,
// otherwise host and port come from configuration.
func serveAddr(cfg *config.Config) (string, error) {
	if len(os.Args) > 2 {
		addr := os.Args[2]
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return "", fmt.Errorf("invalid listen address %q: %w", addr, err)
		}
		return addr, nil
	}
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), nil
}

// runServe initializes and starts the HTTP API server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	addr, err := serveAddr(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("starting chatbot API server", "version", Version)

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	llmClient := llm.New(llm.Config{
		BaseURL:       cfg.OpenRouterBaseURL,
		APIKey:        cfg.OpenRouterAPIKey,
		FallbackModel: cfg.FallbackModel,
		Logger:        logger,
	})

	orchestrator := agent.NewOrchestrator(llmClient, agent.OrchestratorConfig{
		Model:       cfg.OrchestratorModel,
		Temperature: cfg.OrchestratorTemperature,
		MaxTokens:   cfg.OrchestratorMaxTokens,
	}, logger)

	responder := agent.NewResponder(llmClient, agent.ResponderConfig{
		AudreyModel:        cfg.AudreyModel,
		CaroleModel:        cfg.CaroleModel,
		Temperature:        cfg.AgentTemperature,
		MaxTokens:          cfg.AgentMaxTokens,
		MaxHistoryMessages: cfg.MaxHistoryMessages,
	}, logger)

	knowledgeStore := knowledge.New(pool, logger)
	embedder := rag.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel, logger)
	reranker := rag.NewCohereReranker(cfg.CohereBaseURL, cfg.CohereAPIKey, cfg.RerankModel, logger)

	ragService := rag.NewService(embedder, knowledgeStore, reranker, rag.Config{
		SimilarityThreshold: cfg.RAGSimilarityThreshold,
		InitialResults:      cfg.RAGInitialResults,
		RerankTopN:          cfg.RAGRerankTopN,
	}, logger)

	convStore := conversation.New(pool, conversation.Config{
		RateLimitMessages: cfg.RateLimitMessages,
		RateLimitWindow:   time.Duration(cfg.RateLimitWindowSeconds) * time.Second,
	}, logger)

	pipeline := chat.NewPipeline(orchestrator, responder, ragService, convStore, chat.Config{
		MaxHistoryMessages: cfg.MaxHistoryMessages,
	}, logger)

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:  logger,
		Service: pipeline,
		Limits:  convStore,
		Health: api.HealthConfig{
			StorageConfigured:    cfg.PostgresHost != "",
			OpenRouterConfigured: cfg.OpenRouterAPIKey != "",
			OpenAIConfigured:     cfg.OpenAIAPIKey != "",
			CohereConfigured:     cfg.CohereAPIKey != "",
		},
		Pool:        pool,
		Version:     Version,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   parseRateBurst(),
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", addr,
		"api", "/api/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}

// runMigrate runs pending database migrations and exits.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
