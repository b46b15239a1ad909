package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/agencecopines/chatbot/db"
	"github.com/agencecopines/chatbot/internal/config"
	"github.com/agencecopines/chatbot/internal/database"
	"github.com/agencecopines/chatbot/internal/knowledge"
	"github.com/agencecopines/chatbot/internal/rag"
)

// ingestRecord is one JSON Lines entry in an ingest file.
type ingestRecord struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Source    string `json:"source"`
	Partition string `json:"partition"`
}

// runIngest loads knowledge documents from a JSON Lines file, embeds
// them and upserts them into the vector store.
func runIngest() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: copines-chatbot ingest <file>")
	}
	path := os.Args[2]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for ingestion")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	store := knowledge.New(pool, logger)
	embedder := rag.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel, logger)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening ingest file: %w", err)
	}
	defer f.Close()

	var ingested, skipped int
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec ingestRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Warn("skipping malformed line", "line", lineNo, "error", err)
			skipped++
			continue
		}
		if rec.Content == "" || rec.Partition == "" {
			logger.Warn("skipping record without content or partition", "line", lineNo)
			skipped++
			continue
		}
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}

		embedding, err := embedder.Embed(ctx, rec.Content)
		if err != nil {
			return fmt.Errorf("embedding line %d: %w", lineNo, err)
		}

		chunk := knowledge.Chunk{
			ID:        rec.ID,
			Content:   rec.Content,
			Source:    rec.Source,
			Partition: rec.Partition,
		}
		if err := store.Add(ctx, chunk, embedding); err != nil {
			return fmt.Errorf("storing line %d: %w", lineNo, err)
		}
		ingested++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading ingest file: %w", err)
	}

	logger.Info("ingestion complete", "ingested", ingested, "skipped", skipped)
	return nil
}
