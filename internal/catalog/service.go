// Package catalog is the read side of the event catalog: time-window and
// age filtered listings plus lifecycle maintenance.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/STRATINT/eventcatalog/internal/models"
)

// ErrInvalidQuery is returned for contradictory filters.
var ErrInvalidQuery = errors.New("invalid catalog query")

// DefaultNewSinceLimit is the default page size of NewSince.
const DefaultNewSinceLimit = 20

// AgeRange filters events by age overlap. Nil bounds match everything.
type AgeRange struct {
	Min *int
	Max *int
}

// Searcher runs catalog queries against storage.
type Searcher interface {
	SearchCatalog(ctx context.Context, q models.CatalogQuery) ([]models.Event, error)
}

// Service answers the catalog listings used by notification clients and
// the HTTP API. Rejected, inactive and duplicate events are never returned.
type Service struct {
	repo Searcher
	now  func() time.Time
}

// NewService creates a catalog service.
func NewService(repo Searcher) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Today lists events starting today.
func (s *Service) Today(ctx context.Context, age AgeRange, limit int) ([]models.Event, error) {
	return s.inWindow(ctx, TodayWindow(s.now()), age, limit)
}

// Tomorrow lists events starting tomorrow.
func (s *Service) Tomorrow(ctx context.Context, age AgeRange, limit int) ([]models.Event, error) {
	return s.inWindow(ctx, TomorrowWindow(s.now()), age, limit)
}

// Week lists events starting this week, Monday to Sunday.
func (s *Service) Week(ctx context.Context, age AgeRange, limit int) ([]models.Event, error) {
	return s.inWindow(ctx, WeekWindow(s.now()), age, limit)
}

// Weekend lists events starting on the coming weekend.
func (s *Service) Weekend(ctx context.Context, age AgeRange, limit int) ([]models.Event, error) {
	return s.inWindow(ctx, WeekendWindow(s.now()), age, limit)
}

// NewSince lists events first seen at or after since.
func (s *Service) NewSince(ctx context.Context, since time.Time, age AgeRange, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = DefaultNewSinceLimit
	}
	return s.search(ctx, models.CatalogQuery{
		CreatedSince: &since,
		AgeMin:       age.Min,
		AgeMax:       age.Max,
		Limit:        limit,
	})
}

func (s *Service) inWindow(ctx context.Context, w Window, age AgeRange, limit int) ([]models.Event, error) {
	return s.search(ctx, models.CatalogQuery{
		StartFrom:  &w.From,
		StartUntil: &w.Until,
		AgeMin:     age.Min,
		AgeMax:     age.Max,
		Limit:      limit,
	})
}

func (s *Service) search(ctx context.Context, q models.CatalogQuery) ([]models.Event, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	events, err := s.repo.SearchCatalog(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog: %w", err)
	}
	return events, nil
}
