package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/STRATINT/eventcatalog/internal/audit"
	"github.com/STRATINT/eventcatalog/internal/enrichment"
	"github.com/STRATINT/eventcatalog/internal/ingestion"
	"github.com/STRATINT/eventcatalog/internal/models"
)

func strPtr(s string) *string { return &s }

func seedEvent(t *testing.T, repo *ingestion.MemoryEventRepository, ev models.Event) int64 {
	t.Helper()
	if ev.Status == "" {
		ev.Status = models.EventStatusNew
	}
	if ev.SourceURL == "" {
		ev.SourceURL = "https://example.test/" + ev.Source + "/" + ev.SourceEventID
	}
	if err := repo.Insert(context.Background(), &ev); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return ev.ID
}

type stubEnricher struct {
	result *enrichment.Result
	err    error
	calls  int
}

func (s *stubEnricher) Enrich(context.Context, *models.Event) (*enrichment.Result, error) {
	s.calls++
	return s.result, s.err
}

func TestEnrichHandler_AppliesResult(t *testing.T) {
	ctx := context.Background()
	repo := ingestion.NewMemoryEventRepository()
	id := seedEvent(t, repo, models.Event{
		Source: "kudyznudy", SourceEventID: "1", Title: "Koncert", StartAt: time.Now().Add(time.Hour), IsActive: true,
	})

	summary := "Krátký koncert."
	category := models.CategoryMusic
	enricher := &stubEnricher{result: &enrichment.Result{
		Fields: enrichment.Fields{ShortSummary: &summary, Category: &category},
		Mode:   models.EnrichmentModeAI,
		LogID:  9,
	}}
	h := NewEnrichHandler(repo, enricher, 0, nil)

	if err := h.Handle(ctx, id); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	ev, _ := repo.GetByID(ctx, id)
	if !ev.IsEnriched() {
		t.Fatal("event should be enriched")
	}
	if ev.EnrichmentAttempts != 1 || *ev.EnrichmentLogID != 9 || ev.NeedsReview {
		t.Errorf("attempts=%d log=%v review=%v", ev.EnrichmentAttempts, ev.EnrichmentLogID, ev.NeedsReview)
	}
	if ev.Summary == nil || *ev.Summary != summary {
		t.Errorf("summary should be copied from short summary")
	}

	// Already enriched: no second call.
	if err := h.Handle(ctx, id); err != nil {
		t.Fatalf("second Handle: %v", err)
	}
	if enricher.calls != 1 {
		t.Errorf("enricher called %d times, want 1", enricher.calls)
	}
}

func TestEnrichHandler_RulesResultNeedsReview(t *testing.T) {
	ctx := context.Background()
	repo := ingestion.NewMemoryEventRepository()
	id := seedEvent(t, repo, models.Event{Source: "s", SourceEventID: "1", Title: "x", StartAt: time.Now(), IsActive: true})

	summary := "x"
	h := NewEnrichHandler(repo, &stubEnricher{result: &enrichment.Result{
		Fields: enrichment.Fields{ShortSummary: &summary},
		Mode:   models.EnrichmentModeRules,
		LogID:  1,
	}}, 0, nil)
	if err := h.Handle(ctx, id); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	ev, _ := repo.GetByID(ctx, id)
	if !ev.NeedsReview {
		t.Error("rules output must be flagged for review")
	}
}

func TestEnrichHandler_FailureFlagsReview(t *testing.T) {
	ctx := context.Background()
	repo := ingestion.NewMemoryEventRepository()
	id := seedEvent(t, repo, models.Event{Source: "s", SourceEventID: "1", Title: "x", StartAt: time.Now(), IsActive: true})

	boom := errors.New("backend down")
	h := NewEnrichHandler(repo, &stubEnricher{err: boom}, 2, nil)

	if err := h.Handle(ctx, id); !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
	ev, _ := repo.GetByID(ctx, id)
	if ev.EnrichedAt != nil || !ev.NeedsReview || ev.EnrichmentAttempts != 1 {
		t.Errorf("enriched=%v review=%v attempts=%d", ev.EnrichedAt, ev.NeedsReview, ev.EnrichmentAttempts)
	}

	_ = h.Handle(ctx, id)
	// Ceiling reached: skipped without counting.
	if err := h.Handle(ctx, id); err != nil {
		t.Fatalf("exhausted event should be skipped, got %v", err)
	}
	ev, _ = repo.GetByID(ctx, id)
	if ev.EnrichmentAttempts != 2 {
		t.Errorf("attempts = %d, want 2", ev.EnrichmentAttempts)
	}
}

func TestEnrichHandler_SkipsDuplicatesAndMissing(t *testing.T) {
	ctx := context.Background()
	repo := ingestion.NewMemoryEventRepository()
	root := seedEvent(t, repo, models.Event{Source: "a", SourceEventID: "1", Title: "x", StartAt: time.Now(), IsActive: true})
	dup := seedEvent(t, repo, models.Event{Source: "b", SourceEventID: "1", Title: "x", StartAt: time.Now(), IsActive: true, DuplicateOfEventID: &root})

	enricher := &stubEnricher{err: errors.New("should not be called")}
	h := NewEnrichHandler(repo, enricher, 0, nil)

	for _, id := range []int64{dup, 999} {
		if err := h.Handle(ctx, id); err != nil {
			t.Errorf("Handle(%d): %v", id, err)
		}
	}
	if enricher.calls != 0 {
		t.Errorf("enricher called %d times", enricher.calls)
	}
}

func TestEnrichHandler_WithRulesOrchestrator(t *testing.T) {
	ctx := context.Background()
	repo := ingestion.NewMemoryEventRepository()
	id := seedEvent(t, repo, models.Event{
		Source: "kulturajih", SourceEventID: "7", Title: "Pohádka pro děti 4-7 let",
		StartAt: time.Now().Add(24 * time.Hour), IsActive: true,
	})

	store := audit.NewMemoryStore()
	recorder := audit.NewRecorder(store, nil)
	orch := enrichment.NewOrchestrator(
		enrichment.Config{Mode: models.EnrichmentModeRules},
		nil, enrichment.NewRulesProvider(recorder), nil, nil,
	)

	if err := NewEnrichHandler(repo, orch, 0, nil).Handle(ctx, id); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	ev, _ := repo.GetByID(ctx, id)
	if ev.AgeMin == nil || *ev.AgeMin != 4 || *ev.AgeMax != 7 {
		t.Errorf("ages = %v-%v", ev.AgeMin, ev.AgeMax)
	}
	logs, _ := recorder.Logs(ctx, id, audit.ListQuery{})
	if len(logs) != 1 || *ev.EnrichmentLogID != logs[0].ID {
		t.Errorf("log link broken: %+v", logs)
	}
}

// enrichingRepository runs onLookup once, right after the upserter has read
// the existing event and before it writes the re-scraped columns.
type enrichingRepository struct {
	*ingestion.MemoryEventRepository
	onLookup func()
}

func (r *enrichingRepository) FindBySourceEventID(ctx context.Context, source, sourceEventID string) (*models.Event, error) {
	ev, err := r.MemoryEventRepository.FindBySourceEventID(ctx, source, sourceEventID)
	if hook := r.onLookup; hook != nil {
		r.onLookup = nil
		hook()
	}
	return ev, err
}

func TestRescrapeDuringEnrichmentKeepsEnrichment(t *testing.T) {
	ctx := context.Background()
	mem := ingestion.NewMemoryEventRepository()
	start := time.Now().Add(24 * time.Hour).Truncate(time.Minute)
	id := seedEvent(t, mem, models.Event{
		Source: "kudyznudy", SourceEventID: "77", Title: "Divadlo pro děti", StartAt: start, IsActive: true,
	})

	summary := "Pohádka pro nejmenší."
	handler := NewEnrichHandler(mem, &stubEnricher{result: &enrichment.Result{
		Fields: enrichment.Fields{ShortSummary: &summary},
		Mode:   models.EnrichmentModeAI,
		LogID:  4,
	}}, 3, nil)

	repo := &enrichingRepository{MemoryEventRepository: mem}
	repo.onLookup = func() {
		if err := handler.Handle(ctx, id); err != nil {
			t.Errorf("Handle: %v", err)
		}
	}
	resolver := ingestion.NewDuplicateResolver(repo, ingestion.DefaultResolverConfig(), nil)
	upserter := ingestion.NewUpserter(repo, resolver, nil, nil)

	written, err := upserter.Upsert(ctx, models.EventData{
		Source:        "kudyznudy",
		SourceEventID: "77",
		SourceURL:     "https://example.test/kudyznudy/77",
		Title:         "Divadlo pro děti: Perníková chaloupka",
		StartAt:       start,
	})
	if err != nil || !written {
		t.Fatalf("Upsert = %v, %v", written, err)
	}

	ev, _ := mem.GetByID(ctx, id)
	if ev.Title != "Divadlo pro děti: Perníková chaloupka" {
		t.Errorf("title = %q", ev.Title)
	}
	if ev.ShortSummary == nil || *ev.ShortSummary != summary {
		t.Errorf("short summary lost: %v", ev.ShortSummary)
	}
	if ev.EnrichedAt == nil || ev.EnrichmentLogID == nil || *ev.EnrichmentLogID != 4 {
		t.Errorf("enriched_at=%v log=%v", ev.EnrichedAt, ev.EnrichmentLogID)
	}
	if ev.EnrichmentAttempts != 1 {
		t.Errorf("attempts = %d, want 1", ev.EnrichmentAttempts)
	}
}

type recordingDispatcher struct {
	mu     sync.Mutex
	ids    []int64
	delays []time.Duration
}

func (d *recordingDispatcher) Enqueue(_ context.Context, id int64, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
	d.delays = append(d.delays, delay)
	return nil
}

func TestSweeper_StaggersByStartTime(t *testing.T) {
	ctx := context.Background()
	repo := ingestion.NewMemoryEventRepository()
	base := time.Now().Add(time.Hour)

	late := seedEvent(t, repo, models.Event{Source: "s", SourceEventID: "late", Title: "a", StartAt: base.Add(2 * time.Hour), IsActive: true})
	early := seedEvent(t, repo, models.Event{Source: "s", SourceEventID: "early", Title: "b", StartAt: base, IsActive: true})
	seedEvent(t, repo, models.Event{Source: "s", SourceEventID: "done", Title: "c", StartAt: base, IsActive: true, ShortSummary: strPtr("done")})
	seedEvent(t, repo, models.Event{Source: "s", SourceEventID: "rej", Title: "d", StartAt: base, IsActive: true, Status: models.EventStatusRejected})
	seedEvent(t, repo, models.Event{Source: "s", SourceEventID: "dup", Title: "e", StartAt: base, IsActive: true, DuplicateOfEventID: &early})

	d := &recordingDispatcher{}
	queued, err := NewSweeper(repo, d, 0, nil).Sweep(ctx, SweepOptions{Limit: DefaultSweepLimit})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if queued != 2 || d.ids[0] != early || d.ids[1] != late {
		t.Fatalf("queued %d: %v", queued, d.ids)
	}
	if d.delays[0] != 0 || d.delays[1] != DefaultStagger {
		t.Errorf("delays = %v", d.delays)
	}
}

func TestSweeper_RetryFailed(t *testing.T) {
	ctx := context.Background()
	repo := ingestion.NewMemoryEventRepository()
	now := time.Now()

	failed := seedEvent(t, repo, models.Event{Source: "s", SourceEventID: "1", Title: "a", StartAt: now, IsActive: true, EnrichmentAttempts: 2})
	seedEvent(t, repo, models.Event{Source: "s", SourceEventID: "2", Title: "b", StartAt: now, IsActive: true})
	seedEvent(t, repo, models.Event{Source: "s", SourceEventID: "3", Title: "c", StartAt: now, IsActive: true, EnrichmentAttempts: 5})

	d := &recordingDispatcher{}
	queued, err := NewSweeper(repo, d, 5, nil).Sweep(ctx, SweepOptions{RetryFailed: true})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if queued != 1 || d.ids[0] != failed {
		t.Fatalf("queued %v, want only %d", d.ids, failed)
	}
}

func TestSweeper_SkipsExhaustedEvents(t *testing.T) {
	ctx := context.Background()
	repo := ingestion.NewMemoryEventRepository()
	base := time.Now().Add(time.Hour)

	seedEvent(t, repo, models.Event{Source: "s", SourceEventID: "1", Title: "a", StartAt: base, IsActive: true, EnrichmentAttempts: 5})
	seedEvent(t, repo, models.Event{Source: "s", SourceEventID: "2", Title: "b", StartAt: base.Add(time.Minute), IsActive: true, EnrichmentAttempts: 5})
	fresh := seedEvent(t, repo, models.Event{Source: "s", SourceEventID: "3", Title: "c", StartAt: base.Add(time.Hour), IsActive: true})

	d := &recordingDispatcher{}
	queued, err := NewSweeper(repo, d, 5, nil).Sweep(ctx, SweepOptions{Limit: 2})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if queued != 1 || d.ids[0] != fresh {
		t.Fatalf("queued %v, want only %d", d.ids, fresh)
	}
}

func TestMemoryQueue_OrdersByDueTime(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q := NewMemoryQueue()
	_ = q.Enqueue(ctx, 2, 60*time.Millisecond)
	_ = q.Enqueue(ctx, 1, 0)

	first, err := q.Dequeue(ctx)
	if err != nil || first.EventID != 1 {
		t.Fatalf("first = %+v, %v", first, err)
	}
	start := time.Now()
	second, err := q.Dequeue(ctx)
	if err != nil || second.EventID != 2 {
		t.Fatalf("second = %+v, %v", second, err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Error("delayed task was released early")
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("Len = %d", n)
	}
}

func TestMemoryQueue_DequeueHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := NewMemoryQueue().Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

type countingHandler struct {
	mu   sync.Mutex
	seen map[int64]int
	done chan struct{}
	want int
}

func (h *countingHandler) Handle(_ context.Context, id int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[id]++
	total := 0
	for _, n := range h.seen {
		total += n
	}
	if total == h.want {
		close(h.done)
	}
	return nil
}

func TestWorkerPool_ProcessesEachTaskOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue()
	h := &countingHandler{seen: map[int64]int{}, done: make(chan struct{}), want: 20}
	for i := int64(1); i <= 20; i++ {
		_ = q.Enqueue(ctx, i, 0)
	}

	pool := NewWorkerPool(q, h, 4, nil)
	pool.Start(ctx)

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not finish")
	}
	cancel()
	pool.Wait()

	for id, n := range h.seen {
		if n != 1 {
			t.Errorf("event %d handled %d times", id, n)
		}
	}
}

func TestDrain(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	for i := int64(1); i <= 3; i++ {
		_ = q.Enqueue(ctx, i, 0)
	}
	h := &countingHandler{seen: map[int64]int{}, done: make(chan struct{}), want: 3}
	n, err := Drain(ctx, q, h)
	if err != nil || n != 3 {
		t.Fatalf("Drain = %d, %v", n, err)
	}
}
