// Package knowledge manages the partitioned vector store backing the
// retrieval pipeline.
//
// Storage is PostgreSQL + pgvector. Each chunk belongs to exactly one
// agent partition and similarity search is always scoped to a single
// partition, so the two knowledge bases cannot contaminate each other.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// searchTimeout bounds a single vector search query to prevent a slow
// index scan from blocking the chat turn.
const searchTimeout = 10 * time.Second

// Querier is the subset of pgxpool.Pool the Store uses. Defined by the
// consumer so tests can substitute a fake without a real pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides partition-scoped vector similarity search over
// knowledge chunks. Safe for concurrent use.
type Store struct {
	db     Querier
	logger *slog.Logger
}

// New creates a Store.
func New(db Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Search returns up to limit chunks from the given partition whose
// cosine similarity to embedding is at least threshold, ordered most
// similar first. An empty result is a valid outcome, not an error.
func (s *Store) Search(ctx context.Context, embedding []float32, partition string, threshold float32, limit int) ([]Result, error) {
	if partition == "" {
		return nil, errors.New("partition must not be empty")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	vec := pgvector.NewVector(embedding)
	rows, err := s.db.Query(queryCtx, `
		SELECT id, content, source, partition, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM knowledge_chunks
		WHERE partition = $2
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4`,
		vec, partition, threshold, limit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.Content, &r.Chunk.Source,
			&r.Chunk.Partition, &r.Chunk.CreatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}

	s.logger.Debug("vector search completed",
		"partition", partition,
		"results", len(results),
	)
	return results, nil
}

// Add upserts a chunk with its embedding into the chunk's partition.
// Used by ingestion tooling; the chat path only reads.
func (s *Store) Add(ctx context.Context, chunk Chunk, embedding []float32) error {
	if chunk.ID == "" {
		return errors.New("chunk ID must not be empty")
	}
	if chunk.Partition == "" {
		return errors.New("chunk partition must not be empty")
	}

	vec := pgvector.NewVector(embedding)
	_, err := s.db.Exec(ctx, `
		INSERT INTO knowledge_chunks (id, content, source, partition, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content,
		    source = EXCLUDED.source,
		    partition = EXCLUDED.partition,
		    embedding = EXCLUDED.embedding`,
		chunk.ID, chunk.Content, chunk.Source, chunk.Partition, vec)
	if err != nil {
		return fmt.Errorf("upserting chunk %q: %w", chunk.ID, err)
	}

	s.logger.Debug("chunk upserted", "id", chunk.ID, "partition", chunk.Partition)
	return nil
}

// Count returns the number of chunks in a partition.
func (s *Store) Count(ctx context.Context, partition string) (int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT COUNT(*) FROM knowledge_chunks WHERE partition = $1`, partition)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("scanning chunk count: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("reading chunk count: %w", err)
	}
	return count, nil
}
