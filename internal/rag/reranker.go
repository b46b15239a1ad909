package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// rerankTimeout bounds a single rerank call. Reranking is an
// optimization stage; a slow reranker must not stall the chat turn
// longer than this.
const rerankTimeout = 30 * time.Second

// CohereReranker scores candidate documents against a query using the
// Cohere rerank endpoint. Implements Reranker.
type CohereReranker struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     *slog.Logger
}

// NewCohereReranker creates a reranker for the given model
// (e.g. "rerank-multilingual-v3.0").
func NewCohereReranker(baseURL, apiKey, model string, logger *slog.Logger) *CohereReranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CohereReranker{
		httpClient: &http.Client{Timeout: rerankTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		logger:     logger,
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank returns the topN most relevant documents, most relevant first.
// Returned indices refer to positions in the documents slice.
func (r *CohereReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RankedDocument, error) {
	payload, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/v2/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building rerank request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling rerank endpoint: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank request failed with status %d: %s",
			resp.StatusCode, bytes.TrimSpace(body))
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}

	ranked := make([]RankedDocument, 0, len(decoded.Results))
	for _, res := range decoded.Results {
		if res.Index < 0 || res.Index >= len(documents) {
			return nil, fmt.Errorf("rerank returned out-of-range index %d for %d documents",
				res.Index, len(documents))
		}
		ranked = append(ranked, RankedDocument{Index: res.Index, Score: res.RelevanceScore})
	}

	r.logger.Debug("rerank completed", "candidates", len(documents), "selected", len(ranked))
	return ranked, nil
}
