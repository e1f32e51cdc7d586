package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/STRATINT/eventcatalog/internal/enrichment"
	"github.com/STRATINT/eventcatalog/internal/models"
)

// DefaultMaxAttempts is the enrichment attempt ceiling.
const DefaultMaxAttempts = 5

// EventStore is what the enrichment handler needs from the catalog. The
// handler writes only the columns enrichment owns.
type EventStore interface {
	GetByID(ctx context.Context, id int64) (*models.Event, error)
	IncrementEnrichmentAttempts(ctx context.Context, id int64) (int, error)
	SaveEnrichment(ctx context.Context, event *models.Event) error
	MarkNeedsReview(ctx context.Context, id int64) error
}

// Enricher produces enrichment fields for an event.
type Enricher interface {
	Enrich(ctx context.Context, ev *models.Event) (*enrichment.Result, error)
}

// EnrichHandler runs one enrichment task: it guards against repeated work,
// counts the attempt and applies the result to the event.
type EnrichHandler struct {
	store       EventStore
	enricher    Enricher
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

// NewEnrichHandler creates a handler. maxAttempts <= 0 uses DefaultMaxAttempts.
func NewEnrichHandler(store EventStore, enricher Enricher, maxAttempts int, logger *slog.Logger) *EnrichHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &EnrichHandler{
		store:       store,
		enricher:    enricher,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "enrich_handler"),
		now:         time.Now,
	}
}

// Handle enriches eventID. Missing, duplicate, already enriched and
// exhausted events are skipped without error. A failed enrichment leaves
// the event unenriched, flags it for review and returns the error.
func (h *EnrichHandler) Handle(ctx context.Context, eventID int64) error {
	ev, err := h.store.GetByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to load event %d: %w", eventID, err)
	}
	switch {
	case ev == nil:
		h.logger.Debug("skipping missing event", "event_id", eventID)
		return nil
	case !ev.IsRoot():
		h.logger.Debug("skipping duplicate event", "event_id", eventID)
		return nil
	case ev.IsEnriched():
		h.logger.Debug("skipping enriched event", "event_id", eventID)
		return nil
	case ev.EnrichmentAttempts >= h.maxAttempts:
		h.logger.Warn("enrichment attempts exhausted",
			"event_id", eventID,
			"attempts", ev.EnrichmentAttempts,
		)
		return nil
	}

	attempts, err := h.store.IncrementEnrichmentAttempts(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to count enrichment attempt: %w", err)
	}
	ev.EnrichmentAttempts = attempts

	result, err := h.enricher.Enrich(ctx, ev)
	if err != nil {
		if uerr := h.store.MarkNeedsReview(context.WithoutCancel(ctx), eventID); uerr != nil {
			h.logger.Error("failed to flag event for review", "event_id", eventID, "error", uerr)
		}
		h.logger.Error("enrichment failed",
			"event_id", eventID,
			"attempt", attempts,
			"error", err,
		)
		return fmt.Errorf("failed to enrich event %d: %w", eventID, err)
	}

	result.Fields.Apply(ev)
	logID := result.LogID
	enrichedAt := h.now()
	ev.EnrichmentLogID = &logID
	ev.EnrichedAt = &enrichedAt
	ev.NeedsReview = result.Mode != models.EnrichmentModeAI

	if err := h.store.SaveEnrichment(ctx, ev); err != nil {
		return fmt.Errorf("failed to save enrichment for event %d: %w", eventID, err)
	}

	h.logger.Info("event enriched",
		"event_id", eventID,
		"mode", result.Mode,
		"log_id", logID,
		"attempt", attempts,
	)
	return nil
}
