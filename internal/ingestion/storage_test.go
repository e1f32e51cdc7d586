package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/STRATINT/eventcatalog/internal/models"
)

func TestMemoryEventRepository_UniqueKeys(t *testing.T) {
	repo := NewMemoryEventRepository()
	ctx := context.Background()

	first := &models.Event{Source: "a", SourceEventID: "1", SourceURL: "https://a/1", StartAt: testStart}
	if err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if first.ID == 0 || first.CreatedAt.IsZero() {
		t.Fatal("Insert must assign id and timestamps")
	}

	tests := []struct {
		name  string
		event *models.Event
	}{
		{"same source id", &models.Event{Source: "a", SourceEventID: "1", SourceURL: "https://a/other"}},
		{"same url", &models.Event{Source: "b", SourceEventID: "9", SourceURL: "https://a/1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Insert(ctx, tt.event); !errors.Is(err, ErrDuplicateKey) {
				t.Fatalf("expected ErrDuplicateKey, got %v", err)
			}
		})
	}

	if err := repo.Update(ctx, &models.Event{ID: 42}); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestMemoryEventRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryEventRepository()
	ctx := context.Background()

	ev := &models.Event{Source: "a", SourceEventID: "1", SourceURL: "u", Tags: []string{"x"}}
	if err := repo.Insert(ctx, ev); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, _ := repo.GetByID(ctx, ev.ID)
	got.Tags[0] = "mutated"
	got.Title = "mutated"

	again, _ := repo.GetByID(ctx, ev.ID)
	if again.Tags[0] != "x" || again.Title != "" {
		t.Fatal("stored event was mutated through a returned copy")
	}

	if missing, err := repo.GetByID(ctx, 999); missing != nil || err != nil {
		t.Fatalf("expected (nil, nil) for a missing id, got %v, %v", missing, err)
	}
}

func TestMemoryEventRepository_EnrichmentCandidates(t *testing.T) {
	repo := NewMemoryEventRepository()
	ctx := context.Background()
	now := time.Now()
	summary := "done"

	seed := func(id string, start time.Duration, mutate func(*models.Event)) {
		ev := models.Event{Source: "s", SourceEventID: id, SourceURL: "u" + id, StartAt: testStart.Add(start), IsActive: true, Status: models.EventStatusNew}
		if mutate != nil {
			mutate(&ev)
		}
		if err := repo.Insert(ctx, &ev); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	seed("fresh-late", 2*time.Hour, nil)
	seed("fresh-early", time.Hour, nil)
	seed("enriched", 0, func(e *models.Event) { e.ShortSummary = &summary; e.EnrichedAt = &now })
	seed("failed", 0, func(e *models.Event) { e.EnrichmentAttempts = 2 })
	seed("exhausted", 0, func(e *models.Event) { e.EnrichmentAttempts = 5 })
	seed("rejected", 0, func(e *models.Event) { e.Status = models.EventStatusRejected })
	seed("inactive", 0, func(e *models.Event) { e.IsActive = false })
	root := int64(1)
	seed("duplicate", 0, func(e *models.Event) { e.DuplicateOfEventID = &root })

	fresh, err := repo.ListEnrichmentCandidates(ctx, models.EnrichmentCandidateQuery{Limit: 10, MaxAttempts: 5})
	if err != nil {
		t.Fatalf("ListEnrichmentCandidates: %v", err)
	}
	var ids []string
	for _, ev := range fresh {
		ids = append(ids, ev.SourceEventID)
	}
	want := []string{"failed", "exhausted", "fresh-early", "fresh-late"}
	if len(ids) != len(want) {
		t.Fatalf("candidates = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("candidates = %v, want %v", ids, want)
		}
	}

	retry, err := repo.ListEnrichmentCandidates(ctx, models.EnrichmentCandidateQuery{Limit: 10, RetryFailed: true, MaxAttempts: 5})
	if err != nil {
		t.Fatalf("ListEnrichmentCandidates: %v", err)
	}
	if len(retry) != 1 || retry[0].SourceEventID != "failed" {
		t.Fatalf("retry candidates = %+v", retry)
	}
}

func TestMemoryEventRepository_ScopedWritesKeepOtherColumns(t *testing.T) {
	repo := NewMemoryEventRepository()
	ctx := context.Background()

	ev := &models.Event{Source: "a", SourceEventID: "1", SourceURL: "https://a/1", Title: "Old", StartAt: testStart, Tags: []string{"hudba"}}
	if err := repo.Insert(ctx, ev); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := repo.IncrementEnrichmentAttempts(ctx, ev.ID); err != nil {
		t.Fatalf("IncrementEnrichmentAttempts: %v", err)
	}

	// A stale copy read before the scrape carries the old title.
	stale, _ := repo.GetByID(ctx, ev.ID)

	if err := repo.UpdateScraped(ctx, ev.ID, models.EventData{
		Source: "a", SourceEventID: "1", SourceURL: "https://a/1", Title: "New", StartAt: testStart,
	}, nil); err != nil {
		t.Fatalf("UpdateScraped: %v", err)
	}

	summary := "Shrnutí."
	now := testStart
	stale.ShortSummary = &summary
	stale.EnrichedAt = &now
	stale.Tags = []string{"derived"}
	if err := repo.SaveEnrichment(ctx, stale); err != nil {
		t.Fatalf("SaveEnrichment: %v", err)
	}

	got, _ := repo.GetByID(ctx, ev.ID)
	if got.Title != "New" {
		t.Errorf("enrichment overwrote scraped title: %q", got.Title)
	}
	if got.ShortSummary == nil || got.EnrichedAt == nil {
		t.Error("enrichment columns not saved")
	}
	if len(got.Tags) != 1 || got.Tags[0] != "hudba" {
		t.Errorf("tags = %v, want source tags kept", got.Tags)
	}
	if got.EnrichmentAttempts != 1 {
		t.Errorf("attempts = %d, want 1", got.EnrichmentAttempts)
	}

	if err := repo.UpdateScraped(ctx, 99, models.EventData{}, nil); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
	if err := repo.MarkNeedsReview(ctx, 99); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}
