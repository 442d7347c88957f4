package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/benyue1978/ragspace/internal/llm"
	"github.com/benyue1978/ragspace/internal/store"
)

// previewLimit caps how much of each candidate the rerank prompt shows.
const previewLimit = 500

// Completer is the LLM subset the reranker needs. Satisfied by
// *llm.Client.
type Completer interface {
	Complete(ctx context.Context, req llm.GenerateRequest) (string, error)
}

// LLMReranker asks the model to order candidate chunks by relevance.
// Reranking is best effort: any provider error or malformed response
// falls back to the ANN distance order, never an error. The worst
// outcome of a broken reranker is the ordering we already had.
type LLMReranker struct {
	completer Completer
	logger    *slog.Logger
}

// NewLLMReranker creates an LLMReranker. logger may be nil.
func NewLLMReranker(completer Completer, logger *slog.Logger) *LLMReranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMReranker{completer: completer, logger: logger}
}

// Rerank returns up to topK candidates, model-ordered when possible.
func (r *LLMReranker) Rerank(ctx context.Context, query string, candidates []store.ScoredChunk, topK int) []store.ScoredChunk {
	if topK > len(candidates) {
		topK = len(candidates)
	}
	if topK <= 0 {
		return nil
	}

	temperature := 0.0
	resp, err := r.completer.Complete(ctx, llm.GenerateRequest{
		Prompt:      r.prompt(query, candidates, topK),
		Temperature: &temperature,
	})
	if err != nil {
		r.logger.Warn("rerank call failed, keeping distance order", "error", err)
		return candidates[:topK]
	}

	indices, ok := parseIndices(resp, len(candidates))
	if !ok || len(indices) == 0 {
		r.logger.Warn("unusable rerank response, keeping distance order",
			"response_len", len(resp))
		return candidates[:topK]
	}

	reranked := make([]store.ScoredChunk, 0, topK)
	for _, idx := range indices {
		reranked = append(reranked, candidates[idx-1])
		if len(reranked) == topK {
			break
		}
	}
	// The model may return fewer usable indices than topK; pad with the
	// best remaining candidates in distance order.
	if len(reranked) < topK {
		used := make(map[int]bool, len(indices))
		for _, idx := range indices {
			used[idx] = true
		}
		for i := range candidates {
			if len(reranked) == topK {
				break
			}
			if !used[i+1] {
				reranked = append(reranked, candidates[i])
			}
		}
	}
	return reranked
}

func (r *LLMReranker) prompt(query string, candidates []store.ScoredChunk, topK int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rank the following text chunks by relevance to the query.\n")
	fmt.Fprintf(&b, "Query: %s\n\n", query)
	for i, c := range candidates {
		preview := c.Content
		if len(preview) > previewLimit {
			preview = preview[:previewLimit]
		}
		fmt.Fprintf(&b, "Chunk %d:\n%s\n\n", i+1, preview)
	}
	fmt.Fprintf(&b, "Respond with ONLY a JSON array of the %d most relevant chunk numbers, most relevant first. Example: [2, 1, 4]", topK)
	return b.String()
}

// parseIndices extracts a JSON array of 1-based indices from the model
// response, tolerating surrounding prose or code fences. Out-of-range and
// duplicate indices are dropped. Returns ok=false when no JSON array can
// be parsed at all.
func parseIndices(resp string, n int) ([]int, bool) {
	start := strings.Index(resp, "[")
	end := strings.LastIndex(resp, "]")
	if start < 0 || end <= start {
		return nil, false
	}

	var raw []int
	if err := json.Unmarshal([]byte(resp[start:end+1]), &raw); err != nil {
		return nil, false
	}

	seen := make(map[int]bool, len(raw))
	var indices []int
	for _, idx := range raw {
		if idx < 1 || idx > n || seen[idx] {
			continue
		}
		seen[idx] = true
		indices = append(indices, idx)
	}
	return indices, true
}
