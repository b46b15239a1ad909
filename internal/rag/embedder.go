package rag

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder maps query text to a fixed-length vector using the
// OpenAI embeddings endpoint. Implements Embedder.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIEmbedder creates an embedder for the given model
// (e.g. "text-embedding-3-small").
func NewOpenAIEmbedder(apiKey, model string, logger *slog.Logger) *OpenAIEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger,
	}
}

// Embed returns the embedding vector for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned for query")
	}

	e.logger.Debug("embedding generated",
		"model", e.model,
		"dimension", len(resp.Data[0].Embedding),
	)
	return resp.Data[0].Embedding, nil
}
