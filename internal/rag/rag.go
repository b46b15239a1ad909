// Package rag implements the per-responder retrieval pipeline:
// embed the query, search the responder's knowledge partition, rerank
// the candidates, and assemble a bounded context string.
//
// Every stage has isolated failure handling so a degraded result is
// always preferable to aborting the chat: zero search hits produce a
// canned "no context" string, a rerank failure falls back to the
// original candidate order with synthetic scores, and any other failure
// anywhere in the pipeline is converted at the boundary into a short
// apologetic text. Retrieve never returns an error.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agencecopines/chatbot/internal/knowledge"
)

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher performs partition-scoped vector similarity search.
// *knowledge.Store implements it.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, partition string, threshold float32, limit int) ([]knowledge.Result, error)
}

// RankedDocument points back into the candidate slice handed to Rerank.
type RankedDocument struct {
	Index int
	Score float64
}

// Reranker selects the topN most relevant documents for a query.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RankedDocument, error)
}

// RetrievalFailedMessage is returned when the pipeline fails for any
// reason other than an empty search result.
const RetrievalFailedMessage = "Erreur lors de la récupération du contexte."

// chunkDelimiter separates formatted context entries.
const chunkDelimiter = "\n\n---\n\n"

// partitionLabels carries the per-partition presentation bits of the
// formatted context. Domain content, swapped per deployment.
var partitionLabels = map[string]struct {
	emoji     string
	noContext string
}{
	"audrey": {"📚", "Pas de contexte spécifique trouvé dans la base de connaissances d'Audrey."},
	"carole": {"🎨", "Pas de contexte spécifique trouvé dans la base de connaissances de Carole."},
}

// Config tunes the retrieval pipeline.
type Config struct {
	SimilarityThreshold float32 // minimum cosine similarity for search candidates
	InitialResults      int     // candidate count fetched from the vector store
	RerankTopN          int     // chunks kept after reranking
}

// Service runs the four-stage retrieval pipeline.
type Service struct {
	embedder Embedder
	searcher Searcher
	reranker Reranker
	cfg      Config
	logger   *slog.Logger
}

// NewService creates a retrieval Service.
func NewService(embedder Embedder, searcher Searcher, reranker Reranker, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder: embedder,
		searcher: searcher,
		reranker: reranker,
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve runs the pipeline for one query against one knowledge
// partition and returns the formatted context string. It never returns
// an error: failures degrade to a user-safe text instead of aborting
// message generation.
func (s *Service) Retrieve(ctx context.Context, query, partition string) (out string) {
	// Boundary guard: a panic anywhere in the pipeline must not take
	// down the chat turn.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("retrieval pipeline panicked", "partition", partition, "panic", r)
			out = RetrievalFailedMessage
		}
	}()

	text, err := s.retrieve(ctx, query, partition)
	if err != nil {
		s.logger.Error("retrieval pipeline failed", "partition", partition, "error", err)
		return RetrievalFailedMessage
	}
	return text
}

func (s *Service) retrieve(ctx context.Context, query, partition string) (string, error) {
	// Stage 1: embed the query. Nothing is retrievable without it.
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embedding query: %w", err)
	}

	// Stage 2: partition-scoped similarity search.
	candidates, err := s.searcher.Search(ctx, embedding, partition,
		s.cfg.SimilarityThreshold, s.cfg.InitialResults)
	if err != nil {
		return "", fmt.Errorf("searching partition %q: %w", partition, err)
	}
	if len(candidates) == 0 {
		// Valid, expected outcome. The reranker is never called.
		s.logger.Info("no relevant chunks found", "partition", partition)
		return noContextMessage(partition), nil
	}

	// Stage 3: rerank, falling back to original order on failure.
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Chunk.Content
	}
	ranked := s.rerankWithFallback(ctx, query, texts)

	// Stage 4: format the selected chunks into one delimited block.
	formatted := formatContext(partition, candidates, ranked)

	s.logger.Info("retrieval completed",
		"partition", partition,
		"candidates", len(candidates),
		"selected", len(ranked),
	)
	return formatted, nil
}

// rerankWithFallback queries the reranker and, on failure, falls back
// deterministically to the first topN candidates in their original
// order with strictly descending synthetic scores. Reranking is an
// optimization, not a correctness requirement.
func (s *Service) rerankWithFallback(ctx context.Context, query string, texts []string) []RankedDocument {
	ranked, err := s.reranker.Rerank(ctx, query, texts, s.cfg.RerankTopN)
	if err == nil {
		return ranked
	}

	s.logger.Warn("reranking failed, falling back to original order", "error", err)

	n := s.cfg.RerankTopN
	if n > len(texts) {
		n = len(texts)
	}
	fallback := make([]RankedDocument, n)
	for i := range fallback {
		fallback[i] = RankedDocument{Index: i, Score: 1.0 - float64(i)*0.1}
	}
	return fallback
}

// formatContext concatenates the selected chunks into the delimited text
// block injected verbatim into the responder's system prompt. Each entry
// carries a 1-based index, its source label and its relevance score.
func formatContext(partition string, candidates []knowledge.Result, ranked []RankedDocument) string {
	emoji := "📄"
	if labels, ok := partitionLabels[partition]; ok {
		emoji = labels.emoji
	}

	parts := make([]string, 0, len(ranked))
	for i, r := range ranked {
		chunk := candidates[r.Index].Chunk
		source := chunk.Source
		if source == "" {
			source = "Document"
		}
		parts = append(parts, fmt.Sprintf("%s Source %d: %s\nPertinence: %.2f\n%s",
			emoji, i+1, source, r.Score, chunk.Content))
	}
	return strings.Join(parts, chunkDelimiter)
}

// noContextMessage returns the fixed empty-result string for a partition.
func noContextMessage(partition string) string {
	if labels, ok := partitionLabels[partition]; ok {
		return labels.noContext
	}
	return "Pas de contexte spécifique trouvé dans la base de connaissances."
}
