package ingestion

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/STRATINT/eventcatalog/internal/models"
)

var (
	// ErrDuplicateKey is returned by Insert when a unique constraint
	// (source + source_event_id, or source_url) is violated.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrEventNotFound is returned when an update targets a missing row.
	ErrEventNotFound = errors.New("event not found")
)

// EventRepository is the persistence contract of the upsert path. Lookups
// return (nil, nil) when nothing matches.
type EventRepository interface {
	// GetByID retrieves an event by its ID.
	GetByID(ctx context.Context, id int64) (*models.Event, error)

	// FindBySourceEventID retrieves the event a source already produced.
	FindBySourceEventID(ctx context.Context, source, sourceEventID string) (*models.Event, error)

	// FindRootByFingerprint returns the oldest root event with the fingerprint.
	FindRootByFingerprint(ctx context.Context, fingerprint string) (*models.Event, error)

	// FindRootBySourceURLID returns the oldest root event whose URL embeds
	// urlID and whose source differs from excludeSource.
	FindRootBySourceURLID(ctx context.Context, urlID, excludeSource string) (*models.Event, error)

	// FindRootCandidatesAt lists non-rejected root events starting exactly at
	// startAt, ordered by id.
	FindRootCandidatesAt(ctx context.Context, startAt time.Time) ([]models.Event, error)

	// Insert stores a new event and assigns its ID and timestamps.
	Insert(ctx context.Context, event *models.Event) error

	// UpdateScraped writes the source-owned columns of event id from rec.
	// Derived columns and the attempt counter are never touched; age bounds,
	// kid-friendliness and tags are written only when rec carries them.
	UpdateScraped(ctx context.Context, id int64, rec models.EventData, sourceURLID *string) error
}

// MemoryEventRepository is an in-memory event store for tests and local
// runs. It enforces the same unique keys as the SQL schema.
type MemoryEventRepository struct {
	mu        sync.RWMutex
	events    map[int64]models.Event
	sourceIdx map[string]int64
	urlIdx    map[string]int64
	nextID    int64
	now       func() time.Time
}

// NewMemoryEventRepository creates an empty repository.
func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{
		events:    make(map[int64]models.Event),
		sourceIdx: make(map[string]int64),
		urlIdx:    make(map[string]int64),
		nextID:    1,
		now:       time.Now,
	}
}

func sourceKey(source, sourceEventID string) string {
	return source + "\x00" + sourceEventID
}

// GetByID retrieves an event by its ID.
func (r *MemoryEventRepository) GetByID(_ context.Context, id int64) (*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ev, ok := r.events[id]
	if !ok {
		return nil, nil
	}
	return cloneEvent(ev), nil
}

// FindBySourceEventID retrieves the event a source already produced.
func (r *MemoryEventRepository) FindBySourceEventID(_ context.Context, source, sourceEventID string) (*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.sourceIdx[sourceKey(source, sourceEventID)]
	if !ok {
		return nil, nil
	}
	return cloneEvent(r.events[id]), nil
}

// FindRootByFingerprint returns the oldest root event with the fingerprint.
func (r *MemoryEventRepository) FindRootByFingerprint(_ context.Context, fingerprint string) (*models.Event, error) {
	return r.first(func(ev models.Event) bool {
		return ev.IsRoot() && ev.Fingerprint == fingerprint
	}), nil
}

// FindRootBySourceURLID returns the oldest root from another source with the
// same URL-embedded id.
func (r *MemoryEventRepository) FindRootBySourceURLID(_ context.Context, urlID, excludeSource string) (*models.Event, error) {
	return r.first(func(ev models.Event) bool {
		return ev.IsRoot() && ev.Source != excludeSource && ev.SourceURLID != nil && *ev.SourceURLID == urlID
	}), nil
}

// FindRootCandidatesAt lists non-rejected roots starting at startAt.
func (r *MemoryEventRepository) FindRootCandidatesAt(_ context.Context, startAt time.Time) ([]models.Event, error) {
	return r.filter(func(ev models.Event) bool {
		return ev.IsRoot() && ev.Status != models.EventStatusRejected && ev.StartAt.Equal(startAt)
	}), nil
}

// Insert stores a new event.
func (r *MemoryEventRepository) Insert(_ context.Context, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sourceKey(event.Source, event.SourceEventID)
	if _, exists := r.sourceIdx[key]; exists {
		return ErrDuplicateKey
	}
	if _, exists := r.urlIdx[event.SourceURL]; exists {
		return ErrDuplicateKey
	}

	now := r.now()
	event.ID = r.nextID
	r.nextID++
	event.CreatedAt = now
	event.UpdatedAt = now

	r.events[event.ID] = *cloneEvent(*event)
	r.sourceIdx[key] = event.ID
	r.urlIdx[event.SourceURL] = event.ID
	return nil
}

// Update replaces the stored event wholesale. Production writers use the
// column-scoped methods; fixtures use this to shape state.
func (r *MemoryEventRepository) Update(_ context.Context, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.events[event.ID]
	if !ok {
		return ErrEventNotFound
	}
	if current.SourceURL != event.SourceURL {
		if other, taken := r.urlIdx[event.SourceURL]; taken && other != event.ID {
			return ErrDuplicateKey
		}
		delete(r.urlIdx, current.SourceURL)
		r.urlIdx[event.SourceURL] = event.ID
	}

	event.CreatedAt = current.CreatedAt
	event.UpdatedAt = r.now()
	r.events[event.ID] = *cloneEvent(*event)
	return nil
}

// UpdateScraped writes the source-owned columns of event id.
func (r *MemoryEventRepository) UpdateScraped(_ context.Context, id int64, rec models.EventData, sourceURLID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.events[id]
	if !ok {
		return ErrEventNotFound
	}
	if current.SourceURL != rec.SourceURL {
		if other, taken := r.urlIdx[rec.SourceURL]; taken && other != id {
			return ErrDuplicateKey
		}
		delete(r.urlIdx, current.SourceURL)
		r.urlIdx[rec.SourceURL] = id
	}

	applyScraped(&current, rec, sourceURLID)
	current.UpdatedAt = r.now()
	r.events[id] = *cloneEvent(current)
	return nil
}

// SaveEnrichment writes the enrichment-owned columns of event.
func (r *MemoryEventRepository) SaveEnrichment(_ context.Context, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.events[event.ID]
	if !ok {
		return ErrEventNotFound
	}
	copyDerived(&current, event)
	current.UpdatedAt = r.now()
	r.events[event.ID] = *cloneEvent(current)
	return nil
}

// MarkNeedsReview flags event id for manual review.
func (r *MemoryEventRepository) MarkNeedsReview(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.events[id]
	if !ok {
		return ErrEventNotFound
	}
	current.NeedsReview = true
	current.UpdatedAt = r.now()
	r.events[id] = current
	return nil
}

// copyDerived copies the columns enrichment owns. Tags stay with the
// source.
func copyDerived(dst *models.Event, src *models.Event) {
	dst.TitleI18n = src.TitleI18n
	dst.Summary = src.Summary
	dst.SummaryI18n = src.SummaryI18n
	dst.ShortSummary = src.ShortSummary
	dst.ShortSummaryI18n = src.ShortSummaryI18n
	dst.AgeMin = src.AgeMin
	dst.AgeMax = src.AgeMax
	dst.KidFriendly = src.KidFriendly
	dst.IndoorOutdoor = src.IndoorOutdoor
	dst.Category = src.Category
	dst.Language = src.Language
	dst.EnrichedAt = src.EnrichedAt
	dst.EnrichmentLogID = src.EnrichmentLogID
	dst.NeedsReview = src.NeedsReview
}

// IncrementEnrichmentAttempts bumps the attempt counter and returns the new value.
func (r *MemoryEventRepository) IncrementEnrichmentAttempts(_ context.Context, id int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, ok := r.events[id]
	if !ok {
		return 0, ErrEventNotFound
	}
	ev.EnrichmentAttempts++
	ev.UpdatedAt = r.now()
	r.events[id] = ev
	return ev.EnrichmentAttempts, nil
}

// ListEnrichmentCandidates selects active, non-rejected roots for a sweep,
// ordered by start time.
func (r *MemoryEventRepository) ListEnrichmentCandidates(_ context.Context, q models.EnrichmentCandidateQuery) ([]models.Event, error) {
	matches := r.filter(func(ev models.Event) bool {
		if !ev.IsRoot() || !ev.IsActive || ev.Status == models.EventStatusRejected {
			return false
		}
		if q.MaxAttempts > 0 && ev.EnrichmentAttempts >= q.MaxAttempts {
			return false
		}
		if q.RetryFailed {
			return ev.EnrichedAt == nil && ev.EnrichmentAttempts > 0
		}
		return ev.ShortSummary == nil
	})
	sortByStart(matches)
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

// DeactivateEndedBefore clears is_active on events whose end (or start, when
// no end is known) precedes cutoff.
func (r *MemoryEventRepository) DeactivateEndedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var affected int64
	for id, ev := range r.events {
		if !ev.IsActive {
			continue
		}
		ends := ev.StartAt
		if ev.EndAt != nil {
			ends = *ev.EndAt
		}
		if ends.Before(cutoff) {
			ev.IsActive = false
			ev.UpdatedAt = r.now()
			r.events[id] = ev
			affected++
		}
	}
	return affected, nil
}

// SearchCatalog applies the public catalog filters.
func (r *MemoryEventRepository) SearchCatalog(_ context.Context, q models.CatalogQuery) ([]models.Event, error) {
	matches := r.filter(func(ev models.Event) bool {
		if !ev.IsRoot() || !ev.IsActive || ev.Status == models.EventStatusRejected {
			return false
		}
		if q.StartFrom != nil && ev.StartAt.Before(*q.StartFrom) {
			return false
		}
		if q.StartUntil != nil && ev.StartAt.After(*q.StartUntil) {
			return false
		}
		if q.CreatedSince != nil && ev.CreatedAt.Before(*q.CreatedSince) {
			return false
		}
		if q.AgeMax != nil && ev.AgeMin != nil && *ev.AgeMin > *q.AgeMax {
			return false
		}
		if q.AgeMin != nil && ev.AgeMax != nil && *ev.AgeMax < *q.AgeMin {
			return false
		}
		return true
	})
	sortByStart(matches)
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

// Count returns the number of stored events.
func (r *MemoryEventRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

func (r *MemoryEventRepository) first(match func(models.Event) bool) *models.Event {
	found := r.filter(match)
	if len(found) == 0 {
		return nil
	}
	return &found[0]
}

// filter returns copies of matching events ordered by id.
func (r *MemoryEventRepository) filter(match func(models.Event) bool) []models.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Event
	for _, ev := range r.events {
		if match(ev) {
			out = append(out, *cloneEvent(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortByStart(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartAt.Before(events[j].StartAt)
	})
}

func cloneEvent(ev models.Event) *models.Event {
	ev.Tags = slices.Clone(ev.Tags)
	ev.TitleI18n = cloneI18n(ev.TitleI18n)
	ev.SummaryI18n = cloneI18n(ev.SummaryI18n)
	ev.ShortSummaryI18n = cloneI18n(ev.ShortSummaryI18n)
	return &ev
}

func cloneI18n(m models.I18n) models.I18n {
	if m == nil {
		return nil
	}
	out := make(models.I18n, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
