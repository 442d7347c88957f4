package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// RetryConfig configures the retry behavior for provider calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups error substrings by category.
// Matched case-insensitively against err.Error().
//
// NOTE: This uses string matching because Genkit and LLM provider SDKs
// do not expose typed errors for transient failures. Re-evaluate if
// Genkit adds structured error types in a future version.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	for _, group := range retryablePatterns {
		if containsAny(errStr, group...) {
			return true
		}
	}
	return false
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// withRetry runs fn with exponential backoff, retrying only transient
// errors. Each attempt waits on the rate limiter first, so retries never
// exceed the provider rate either. Invalid input errors from the provider
// surface immediately.
func withRetry(ctx context.Context, logger *slog.Logger, cfg RetryConfig, limiter *rate.Limiter, op string, fn func(context.Context) error) error {
	var lastErr error
	delay := cfg.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Debug("call succeeded after retry",
					"op", op, "attempts", attempt+1, "elapsed", time.Since(start))
			}
			return nil
		}

		lastErr = err

		if !retryableError(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if attempt == cfg.MaxRetries {
			break
		}

		logger.Debug("retrying after transient error",
			"op", op, "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, cfg.MaxInterval)
		}
	}

	return fmt.Errorf("%s after %d retries (elapsed: %v): %w",
		op, cfg.MaxRetries, time.Since(start), lastErr)
}
