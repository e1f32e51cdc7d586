package enrichment

import (
	"context"
	"fmt"

	"github.com/STRATINT/eventcatalog/internal/audit"
	"github.com/STRATINT/eventcatalog/internal/models"
)

const invalidJSONMessage = "Invalid JSON response"

// AIProvider enriches events by prompting an LLM for structured JSON.
type AIProvider struct {
	client   LLMClient
	recorder *audit.Recorder
}

// NewAIProvider creates an AI provider.
func NewAIProvider(client LLMClient, recorder *audit.Recorder) *AIProvider {
	return &AIProvider{client: client, recorder: recorder}
}

// Enrich writes a pending log, calls the model and normalizes its answer.
// Transport failures and unparseable answers finish the log as failed and
// are returned in the outcome.
func (p *AIProvider) Enrich(ctx context.Context, ev *models.Event) Outcome {
	prompt, err := BuildPrompt(ev)
	if err != nil {
		return Outcome{Err: err}
	}

	attempt, err := p.recorder.Start(ctx, ev.ID, models.EnrichmentModeAI, prompt)
	if err != nil {
		return Outcome{Err: err}
	}
	// The log must be finished even when ctx is already cancelled.
	logCtx := context.WithoutCancel(ctx)

	completion, err := p.client.Complete(ctx, prompt)
	if err != nil {
		_ = attempt.Fail(logCtx, nil, err.Error())
		return Outcome{Err: fmt.Errorf("failed to enrich event %d with ai: %w", ev.ID, err)}
	}

	parsed, err := ParseResponse(completion.Content)
	if err != nil {
		_ = attempt.Fail(logCtx, &completion.Content, invalidJSONMessage)
		return Outcome{Err: fmt.Errorf("failed to enrich event %d with ai: %w", ev.ID, err)}
	}

	fields := NormalizeFields(parsed)
	if err := attempt.Succeed(logCtx, completion.Content, completion.PromptTokens, completion.CompletionTokens); err != nil {
		return Outcome{Err: err}
	}

	return Outcome{Result: &Result{Fields: fields, Mode: models.EnrichmentModeAI, LogID: attempt.ID}}
}
