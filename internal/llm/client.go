package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

// Message is one turn of conversation history.
type Message struct {
	Role    string // "user" or "model"
	Content string
}

// Message role values.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// GenerateRequest describes a completion call.
type GenerateRequest struct {
	System      string
	History     []Message
	Prompt      string
	Temperature *float64 // nil leaves the model default

	// Stream, when set, receives text deltas as they arrive. The full
	// response text is still returned at the end.
	Stream func(ctx context.Context, delta string) error
}

// ClientConfig tunes the generation client.
type ClientConfig struct {
	Model       string // provider model name, e.g. "gemini-2.5-flash"
	CallTimeout time.Duration
	Retry       RetryConfig
	RateLimit   float64 // requests per second, 0 disables limiting
}

// Client generates completions through Genkit.
type Client struct {
	g       *genkit.Genkit
	cfg     ClientConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a generation client. logger may be nil.
func NewClient(g *genkit.Genkit, cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
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
	return &Client{g: g, cfg: cfg, limiter: limiter, logger: logger}
}

// Complete runs a generation call and returns the full response text.
// Streaming requests are not retried after the first delta has been
// delivered; a transient failure then surfaces to the caller.
func (c *Client) Complete(ctx context.Context, req GenerateRequest) (string, error) {
	if req.Prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}

	messages := make([]*ai.Message, 0, len(req.History)+1)
	for _, m := range req.History {
		switch m.Role {
		case RoleUser:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		case RoleModel:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		default:
			return "", fmt.Errorf("unknown message role %q", m.Role)
		}
	}
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(req.Prompt)))

	opts := []ai.GenerateOption{
		ai.WithModelName("googleai/" + c.cfg.Model),
		ai.WithMessages(messages...),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}
	if req.Temperature != nil {
		opts = append(opts, ai.WithConfig(map[string]any{"temperature": *req.Temperature}))
	}

	streamed := false
	if req.Stream != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			streamed = true
			return req.Stream(ctx, chunk.Text())
		}))
	}

	var text string
	err := withRetry(ctx, c.logger, c.cfg.Retry, c.limiter, "generate", func(ctx context.Context) error {
		if streamed {
			return fmt.Errorf("stream already started: %w", errNoRetryAfterStream)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()

		resp, callErr := genkit.Generate(callCtx, c.g, opts...)
		if callErr != nil {
			return callErr
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// errNoRetryAfterStream marks a failure that happened after partial output
// reached the caller. It never matches the transient patterns, so the
// retry loop stops.
var errNoRetryAfterStream = fmt.Errorf("partial response already streamed")
