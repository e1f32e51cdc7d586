package models

import (
	"fmt"
	"time"
)

const (
	DefaultCatalogLimit = 10
	MaxCatalogLimit     = 100
)

// CatalogQuery filters the public, read-only view of the catalog. The view
// always excludes rejected, inactive and duplicate events.
type CatalogQuery struct {
	// StartFrom and StartUntil bound start_at inclusively.
	StartFrom  *time.Time `json:"start_from,omitempty"`
	StartUntil *time.Time `json:"start_until,omitempty"`

	// CreatedSince restricts to events first seen at or after the instant.
	CreatedSince *time.Time `json:"created_since,omitempty"`

	// AgeMin and AgeMax select events whose own age bounds are unknown or
	// overlap the requested range. Nil bounds match everything.
	AgeMin *int `json:"age_min,omitempty"`
	AgeMax *int `json:"age_max,omitempty"`

	Limit int `json:"limit,omitempty"`
}

// Validate applies defaults and rejects impossible ranges.
func (q *CatalogQuery) Validate() error {
	if q.Limit <= 0 {
		q.Limit = DefaultCatalogLimit
	}
	if q.Limit > MaxCatalogLimit {
		q.Limit = MaxCatalogLimit
	}
	if q.AgeMin != nil && q.AgeMax != nil && *q.AgeMin > *q.AgeMax {
		return fmt.Errorf("age_min (%d) exceeds age_max (%d)", *q.AgeMin, *q.AgeMax)
	}
	if q.StartFrom != nil && q.StartUntil != nil && q.StartUntil.Before(*q.StartFrom) {
		return fmt.Errorf("start_until precedes start_from")
	}
	return nil
}

// EnrichmentCandidateQuery selects root events for an enrichment sweep.
type EnrichmentCandidateQuery struct {
	Limit int
	// RetryFailed picks events that were attempted but never enriched.
	// Otherwise events without a short summary are picked.
	RetryFailed bool
	// MaxAttempts excludes events that used up their attempts, in both
	// modes. Zero disables the ceiling.
	MaxAttempts int
}
