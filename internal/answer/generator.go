package answer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benyue1978/ragspace/internal/llm"
)

// systemInstruction constrains the model to the assembled context.
const systemInstruction = `You are a helpful assistant answering questions about a document collection.

Rules:
- Answer ONLY from the provided context. Do not use outside knowledge.
- Cite sources by their number, e.g. "According to Source 2".
- If the context does not contain the answer, say so plainly instead of guessing.`

// Completer is the LLM subset the generator needs. Satisfied by
// *llm.Client.
type Completer interface {
	Complete(ctx context.Context, req llm.GenerateRequest) (string, error)
}

// Generator produces grounded answers from assembled context.
type Generator struct {
	completer   Completer
	historySize int // conversation turns kept, most recent first
	logger      *slog.Logger
}

// NewGenerator creates a Generator keeping the last historySize turns.
// logger may be nil.
func NewGenerator(completer Completer, historySize int, logger *slog.Logger) *Generator {
	if historySize <= 0 {
		historySize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{completer: completer, historySize: historySize, logger: logger}
}

// Generate answers the query from the assembled context.
func (g *Generator) Generate(ctx context.Context, query, contextText string, history []llm.Message) (string, error) {
	return g.generate(ctx, query, contextText, history, nil)
}

// GenerateStream answers the query, delivering text fragments through
// callback as they arrive. The full text is still returned. Cancelling
// ctx stops the stream at a fragment boundary.
func (g *Generator) GenerateStream(ctx context.Context, query, contextText string, history []llm.Message, callback func(ctx context.Context, delta string) error) (string, error) {
	if callback == nil {
		return "", fmt.Errorf("nil stream callback")
	}
	return g.generate(ctx, query, contextText, history, callback)
}

func (g *Generator) generate(ctx context.Context, query, contextText string, history []llm.Message, stream func(ctx context.Context, delta string) error) (string, error) {
	if query == "" {
		return "", fmt.Errorf("empty query")
	}

	if len(history) > g.historySize {
		history = history[len(history)-g.historySize:]
	}

	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, query)
	if contextText == "" {
		prompt = fmt.Sprintf("No context was retrieved for this question.\n\nQuestion: %s", query)
	}

	text, err := g.completer.Complete(ctx, llm.GenerateRequest{
		System:  systemInstruction,
		History: history,
		Prompt:  prompt,
		Stream:  stream,
	})
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}

	g.logger.Debug("generated answer",
		"query_len", len(query), "context_len", len(contextText), "answer_len", len(text))
	return text, nil
}
