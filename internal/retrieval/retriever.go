// Package retrieval finds the chunks most relevant to a query: an ANN
// search over the chunk store, optionally refined by an LLM reranker.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benyue1978/ragspace/internal/store"
)

// Querier is the store subset the retriever needs.
type Querier interface {
	QueryNearest(ctx context.Context, embedding []float32, collections []string, limit int) ([]store.ScoredChunk, error)
}

// QueryEmbedder embeds a single query string. Satisfied by *llm.Embedder.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Reranker reorders candidates by relevance to the query. Implementations
// must degrade gracefully: on any internal failure they return a usable
// subset rather than an error.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []store.ScoredChunk, topK int) []store.ScoredChunk
}

// Config tunes retrieval.
type Config struct {
	DefaultTopK         int
	CandidateMultiplier int // overfetch factor when reranking
}

// Retriever embeds queries and searches the chunk store.
type Retriever struct {
	querier  Querier
	embedder QueryEmbedder
	reranker Reranker // nil disables reranking
	cfg      Config
	logger   *slog.Logger
}

// New creates a Retriever. reranker may be nil to disable reranking;
// logger may be nil.
func New(querier Querier, embedder QueryEmbedder, reranker Reranker, cfg Config, logger *slog.Logger) *Retriever {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.CandidateMultiplier <= 1 {
		cfg.CandidateMultiplier = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{querier: querier, embedder: embedder, reranker: reranker, cfg: cfg, logger: logger}
}

// Retrieve returns up to topK chunks relevant to the query, most relevant
// first. With a reranker configured it overfetches candidates and lets
// the reranker choose; otherwise the ANN distance order stands. topK <= 0
// uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query string, collections []string, topK int) ([]store.ScoredChunk, error) {
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if topK <= 0 {
		topK = r.cfg.DefaultTopK
	}

	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	fetch := topK
	if r.reranker != nil {
		fetch = topK * r.cfg.CandidateMultiplier
	}

	candidates, err := r.querier.QueryNearest(ctx, embedding, collections, fetch)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	r.logger.Debug("retrieved candidates",
		"query_len", len(query), "candidates", len(candidates), "top_k", topK)

	if r.reranker != nil && len(candidates) > 1 {
		return r.reranker.Rerank(ctx, query, candidates, topK), nil
	}
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}
