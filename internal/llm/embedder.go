// Package llm wraps the Genkit Google AI provider behind two small
// clients: an Embedder that turns text into vectors and a Client that
// generates completions. Both apply the same rate limiting, timeout and
// transient-error retry policy, so no other package talks to the
// provider directly.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
)

// Dimension is the embedding vector size. Matches the vector(768) column;
// the provider is asked to truncate its output to this length.
const Dimension = 768

// EmbedderConfig tunes batching and call policy for the Embedder.
type EmbedderConfig struct {
	BatchSize   int           // max texts per provider call
	CallTimeout time.Duration // per-call deadline
	Retry       RetryConfig
	RateLimit   float64 // requests per second, 0 disables limiting
}

// Embedder converts text into fixed-size vectors using a Genkit embedder.
type Embedder struct {
	embedder ai.Embedder
	cfg      EmbedderConfig
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewEmbedder wraps a Genkit embedder. logger may be nil.
func NewEmbedder(embedder ai.Embedder, cfg EmbedderConfig, logger *slog.Logger) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 96
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialInterval == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{embedder: embedder, cfg: cfg, limiter: limiter, logger: logger}
}

// EmbedTexts embeds texts in order, batching provider calls. The result
// has one vector per input text. Returns the first error encountered;
// cancellation between batches is honored.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+e.cfg.BatchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	e.logger.Debug("embedded texts", "count", len(texts))
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}
	req := &ai.EmbedRequest{
		Input:   docs,
		Options: map[string]any{"outputDimensionality": Dimension},
	}

	var resp *ai.EmbedResponse
	err := withRetry(ctx, e.logger, e.cfg.Retry, e.limiter, "embed", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()

		var callErr error
		resp, callErr = e.embedder.Embed(callCtx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}
	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}
