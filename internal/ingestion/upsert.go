package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/STRATINT/eventcatalog/internal/models"
)

// EnrichmentDispatcher queues enrichment for a freshly created root event.
type EnrichmentDispatcher interface {
	Enqueue(ctx context.Context, eventID int64, delay time.Duration) error
}

// UpsertOutcome classifies what an upsert did.
type UpsertOutcome string

const (
	OutcomeCreated   UpsertOutcome = "created"
	OutcomeDuplicate UpsertOutcome = "duplicate"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// UpsertObserver receives upsert outcomes, typically for metrics.
type UpsertObserver interface {
	ObserveUpsert(source string, outcome UpsertOutcome, tier MatchTier)
}

// ConflictRetryPolicy bounds the re-read loop after a lost insert race.
func ConflictRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// Upserter is the single write entry point for scraped records.
type Upserter struct {
	repo       EventRepository
	resolver   *DuplicateResolver
	dispatcher EnrichmentDispatcher
	observer   UpsertObserver
	policy     RetryPolicy
	logger     *slog.Logger
}

// UpserterOption customizes an Upserter.
type UpserterOption func(*Upserter)

// WithUpsertObserver attaches an outcome observer.
func WithUpsertObserver(o UpsertObserver) UpserterOption {
	return func(u *Upserter) { u.observer = o }
}

// WithConflictRetryPolicy overrides the insert-race retry policy.
func WithConflictRetryPolicy(p RetryPolicy) UpserterOption {
	return func(u *Upserter) { u.policy = p }
}

// NewUpserter wires the upsert path. dispatcher may be nil, in which case
// new roots wait for the next enrichment sweep.
func NewUpserter(repo EventRepository, resolver *DuplicateResolver, dispatcher EnrichmentDispatcher, logger *slog.Logger, opts ...UpserterOption) *Upserter {
	if logger == nil {
		logger = slog.Default()
	}
	u := &Upserter{
		repo:       repo,
		resolver:   resolver,
		dispatcher: dispatcher,
		policy:     ConflictRetryPolicy(),
		logger:     logger.With("component", "upserter"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upsert stores rec and reports whether anything was written. A repeated
// sighting from the same source updates in place; a record matching an
// existing event from another source is stored as a duplicate of its root;
// anything else becomes a new root and is queued for enrichment.
func (u *Upserter) Upsert(ctx context.Context, rec models.EventData) (bool, error) {
	if rec.Fingerprint == "" {
		rec.Fingerprint = Fingerprint(rec.Title, rec.StartAt, rec.Venue)
	}

	var written bool
	err := Retry(ctx, u.policy, func() error {
		w, err := u.upsertOnce(ctx, rec)
		if errors.Is(err, ErrDuplicateKey) {
			u.logger.Debug("insert lost race, re-reading",
				"source", rec.Source,
				"source_event_id", rec.SourceEventID,
			)
			return NewRetryableError(err)
		}
		written = w
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert %s/%s: %w", rec.Source, rec.SourceEventID, err)
	}
	return written, nil
}

func (u *Upserter) upsertOnce(ctx context.Context, rec models.EventData) (bool, error) {
	existing, err := u.repo.FindBySourceEventID(ctx, rec.Source, rec.SourceEventID)
	if err != nil {
		return false, fmt.Errorf("failed to look up source event: %w", err)
	}

	if existing != nil {
		urlID := sourceURLID(rec, u.resolver.Config())
		if !applyScraped(existing, rec, urlID) {
			u.observe(rec.Source, OutcomeUnchanged, MatchNone)
			return false, nil
		}
		// Only source-owned columns are written so that enrichment landing
		// between the read and this write survives.
		if err := u.repo.UpdateScraped(ctx, existing.ID, rec, urlID); err != nil {
			return false, fmt.Errorf("failed to update event %d: %w", existing.ID, err)
		}
		u.observe(rec.Source, OutcomeUpdated, MatchNone)
		return true, nil
	}

	match, tier, err := u.resolver.FindDuplicateCandidate(ctx, rec)
	if err != nil {
		return false, err
	}

	event := newEvent(rec, u.resolver.Config())
	if match != nil {
		rootID, err := u.resolver.ResolveRootID(ctx, match)
		if err != nil {
			return false, err
		}
		event.DuplicateOfEventID = &rootID
	}

	if err := u.repo.Insert(ctx, event); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return false, err
		}
		return false, fmt.Errorf("failed to insert event: %w", err)
	}

	if event.DuplicateOfEventID != nil {
		u.logger.Info("stored duplicate event",
			"event_id", event.ID,
			"duplicate_of_event_id", *event.DuplicateOfEventID,
			"source", rec.Source,
			"tier", string(tier),
		)
		u.observe(rec.Source, OutcomeDuplicate, tier)
		return true, nil
	}

	u.observe(rec.Source, OutcomeCreated, MatchNone)
	if u.dispatcher != nil {
		if err := u.dispatcher.Enqueue(ctx, event.ID, 0); err != nil {
			// The row exists; the periodic sweep will pick it up.
			u.logger.Warn("failed to dispatch enrichment", "event_id", event.ID, "error", err)
		}
	}
	return true, nil
}

func (u *Upserter) observe(source string, outcome UpsertOutcome, tier MatchTier) {
	if u.observer != nil {
		u.observer.ObserveUpsert(source, outcome, tier)
	}
}

func newEvent(rec models.EventData, cfg ResolverConfig) *models.Event {
	event := &models.Event{
		Status:   models.EventStatusNew,
		IsActive: true,
	}
	applyScraped(event, rec, sourceURLID(rec, cfg))
	return event
}

func sourceURLID(rec models.EventData, cfg ResolverConfig) *string {
	if id := cfg.ExtractURLID(rec.SourceURL); id != "" {
		return &id
	}
	return nil
}

// applyScraped copies the source-owned columns of rec onto ev and reports
// whether any changed. Scraped age bounds, tags and kid-friendliness only
// overwrite when the source supplied them, so enrichment results survive
// re-scrapes. Repositories implementing UpdateScraped follow the same rule.
func applyScraped(ev *models.Event, rec models.EventData, urlID *string) bool {
	changed := false

	changed = setString(&ev.Source, rec.Source) || changed
	changed = setString(&ev.SourceEventID, rec.SourceEventID) || changed
	changed = setString(&ev.SourceURL, rec.SourceURL) || changed
	changed = setString(&ev.Title, rec.Title) || changed
	changed = setString(&ev.Fingerprint, rec.Fingerprint) || changed

	if !ev.StartAt.Equal(rec.StartAt) {
		ev.StartAt = rec.StartAt
		changed = true
	}
	changed = setTime(&ev.EndAt, rec.EndAt) || changed

	changed = setOptional(&ev.Venue, rec.Venue) || changed
	changed = setOptional(&ev.LocationName, rec.LocationName) || changed
	changed = setOptional(&ev.Address, rec.Address) || changed
	changed = setOptional(&ev.PriceText, rec.PriceText) || changed
	changed = setOptional(&ev.Description, rec.Description) || changed
	changed = setOptional(&ev.DescriptionRaw, rec.DescriptionRaw) || changed

	changed = setOptional(&ev.SourceURLID, urlID) || changed

	if rec.AgeMin != nil {
		changed = setOptional(&ev.AgeMin, rec.AgeMin) || changed
	}
	if rec.AgeMax != nil {
		changed = setOptional(&ev.AgeMax, rec.AgeMax) || changed
	}
	if rec.KidFriendly != nil {
		changed = setOptional(&ev.KidFriendly, rec.KidFriendly) || changed
	}
	if rec.Tags != nil && !slices.Equal(ev.Tags, rec.Tags) {
		ev.Tags = slices.Clone(rec.Tags)
		changed = true
	}

	return changed
}

func setString(dst *string, v string) bool {
	if *dst == v {
		return false
	}
	*dst = v
	return true
}

func setOptional[T comparable](dst **T, v *T) bool {
	switch {
	case *dst == nil && v == nil:
		return false
	case *dst != nil && v != nil && **dst == *v:
		return false
	}
	if v == nil {
		*dst = nil
		return true
	}
	val := *v
	*dst = &val
	return true
}

func setTime(dst **time.Time, v *time.Time) bool {
	switch {
	case *dst == nil && v == nil:
		return false
	case *dst != nil && v != nil && (*dst).Equal(*v):
		return false
	}
	if v == nil {
		*dst = nil
		return true
	}
	val := *v
	*dst = &val
	return true
}
