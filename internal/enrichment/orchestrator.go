package enrichment

import (
	"context"
	"log/slog"
	"time"

	"github.com/STRATINT/eventcatalog/internal/models"
)

// Result is a successful enrichment: the fields, the mode that produced
// them and the log entry describing the run.
type Result struct {
	Fields Fields
	Mode   models.EnrichmentMode
	LogID  int64
}

// Outcome is what a provider returns: exactly one of Result and Err is set.
type Outcome struct {
	Result *Result
	Err    error
}

// Config selects the enrichment policy.
type Config struct {
	Mode      models.EnrichmentMode
	AIEnabled bool
}

// Observer receives one call per provider run, typically for metrics.
type Observer interface {
	ObserveEnrichment(mode models.EnrichmentMode, status models.LogStatus, elapsed time.Duration)
}

// Orchestrator picks a provider according to Config.
type Orchestrator struct {
	config   Config
	ai       *AIProvider
	rules    *RulesProvider
	observer Observer
	logger   *slog.Logger
}

// NewOrchestrator wires the providers. ai may be nil when no backend is
// configured; ai mode then fails and hybrid mode uses rules directly.
func NewOrchestrator(config Config, ai *AIProvider, rules *RulesProvider, observer Observer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		config:   config,
		ai:       ai,
		rules:    rules,
		observer: observer,
		logger:   logger.With("component", "enrichment"),
	}
}

// Enrich runs the configured policy for ev.
//
//   - ai: the AI provider only; its error is returned unchanged.
//   - rules, or hybrid with AI disabled: the rules provider.
//   - hybrid with AI enabled: the AI provider, falling back to rules on
//     any failure.
func (o *Orchestrator) Enrich(ctx context.Context, ev *models.Event) (*Result, error) {
	switch o.config.Mode {
	case models.EnrichmentModeAI:
		if o.ai == nil {
			return nil, errAIUnavailable
		}
		out := o.runAI(ctx, ev)
		return out.Result, out.Err

	case models.EnrichmentModeHybrid:
		if o.config.AIEnabled && o.ai != nil {
			out := o.runAI(ctx, ev)
			if out.Err == nil {
				return out.Result, nil
			}
			o.logger.Warn("ai enrichment failed, falling back to rules",
				"event_id", ev.ID,
				"error", out.Err,
			)
			fallback := o.runRules(ctx, ev, ReasonFallback)
			return fallback.Result, fallback.Err
		}
	}

	out := o.runRules(ctx, ev, ReasonRules)
	return out.Result, out.Err
}

func (o *Orchestrator) runAI(ctx context.Context, ev *models.Event) Outcome {
	start := time.Now()
	out := o.ai.Enrich(ctx, ev)
	status := models.LogStatusSuccess
	if out.Err != nil {
		status = models.LogStatusFailed
	}
	o.observe(models.EnrichmentModeAI, status, time.Since(start))
	return out
}

func (o *Orchestrator) runRules(ctx context.Context, ev *models.Event, reason Reason) Outcome {
	start := time.Now()
	out := o.rules.Enrich(ctx, ev, reason)
	status := models.LogStatusSuccess
	switch {
	case out.Err != nil:
		status = models.LogStatusFailed
	case reason == ReasonFallback:
		status = models.LogStatusFallback
	}
	o.observe(models.EnrichmentModeRules, status, time.Since(start))
	return out
}

func (o *Orchestrator) observe(mode models.EnrichmentMode, status models.LogStatus, elapsed time.Duration) {
	if o.observer != nil {
		o.observer.ObserveEnrichment(mode, status, elapsed)
	}
}
