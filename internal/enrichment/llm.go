package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrEmptyResponse is returned when a backend answers without content.
var ErrEmptyResponse = errors.New("llm returned no content")

// Completion is the raw answer of an LLM backend.
type Completion struct {
	Content          string
	PromptTokens     *int
	CompletionTokens *int
}

// LLMClient sends a prompt and returns the raw JSON text produced by the
// model. It fails on non-success responses and on empty content.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (*Completion, error)
}

// RateLimitedClient paces calls to an LLM backend with a token bucket.
type RateLimitedClient struct {
	next    LLMClient
	limiter *rate.Limiter
}

// NewRateLimitedClient allows one call per interval. A non-positive
// interval disables pacing.
func NewRateLimitedClient(next LLMClient, interval time.Duration) *RateLimitedClient {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateLimitedClient{next: next, limiter: rate.NewLimiter(limit, 1)}
}

func (c *RateLimitedClient) Complete(ctx context.Context, prompt string) (*Completion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return c.next.Complete(ctx, prompt)
}

var errAIUnavailable = errors.New("ai enrichment requested but no LLM backend is configured")
