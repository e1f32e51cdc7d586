package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/STRATINT/eventcatalog/internal/ingestion"
	"github.com/STRATINT/eventcatalog/internal/models"
)

const (
	// DefaultSweepLimit is the batch size of scheduled sweeps.
	DefaultSweepLimit = 15
	// unboundedSweepLimit replaces a non-positive limit.
	unboundedSweepLimit = 50
	// DefaultStagger spaces consecutive dispatches.
	DefaultStagger = 3 * time.Second
)

// CandidateLister selects events that still need enrichment.
type CandidateLister interface {
	ListEnrichmentCandidates(ctx context.Context, q models.EnrichmentCandidateQuery) ([]models.Event, error)
}

// SweepOptions controls one sweep.
type SweepOptions struct {
	Limit       int
	RetryFailed bool
}

// Sweeper re-dispatches enrichment for events that never got it, either
// because the dispatch was lost or because earlier attempts failed.
type Sweeper struct {
	lister      CandidateLister
	dispatcher  ingestion.EnrichmentDispatcher
	stagger     time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// NewSweeper creates a sweeper.
func NewSweeper(lister CandidateLister, dispatcher ingestion.EnrichmentDispatcher, maxAttempts int, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Sweeper{
		lister:      lister,
		dispatcher:  dispatcher,
		stagger:     DefaultStagger,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "enrich_sweeper"),
	}
}

// Sweep enqueues up to opts.Limit candidates ordered by start time, the
// i-th one delayed by i times the stagger. It returns how many were queued.
func (s *Sweeper) Sweep(ctx context.Context, opts SweepOptions) (int, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = unboundedSweepLimit
	}

	events, err := s.lister.ListEnrichmentCandidates(ctx, models.EnrichmentCandidateQuery{
		Limit:       limit,
		RetryFailed: opts.RetryFailed,
		MaxAttempts: s.maxAttempts,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list enrichment candidates: %w", err)
	}

	queued := 0
	for i, ev := range events {
		if err := s.dispatcher.Enqueue(ctx, ev.ID, time.Duration(i)*s.stagger); err != nil {
			return queued, fmt.Errorf("failed to enqueue event %d: %w", ev.ID, err)
		}
		queued++
	}

	s.logger.Info("enrichment sweep dispatched",
		"queued", queued,
		"limit", limit,
		"retry_failed", opts.RetryFailed,
	)
	return queued, nil
}
