package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/STRATINT/eventcatalog/internal/models"
)

type staticFetcher struct {
	name    string
	records []models.EventData
	err     error
}

func (f *staticFetcher) Name() string { return f.name }

func (f *staticFetcher) Fetch(context.Context) ([]models.EventData, error) {
	return f.records, f.err
}

type flakyWriter struct {
	failID string
	calls  []string
}

func (w *flakyWriter) Upsert(_ context.Context, rec models.EventData) (bool, error) {
	w.calls = append(w.calls, rec.SourceEventID)
	if rec.SourceEventID == w.failID {
		return false, errors.New("boom")
	}
	return rec.SourceEventID != "unchanged", nil
}

func TestConnector_RunFiltersWindowAndSkipsFailures(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := func(id string, offset time.Duration) models.EventData {
		return models.EventData{SourceEventID: id, StartAt: now.Add(offset)}
	}

	fetcher := &staticFetcher{name: "kulturajih", records: []models.EventData{
		rec("past", -time.Minute),
		rec("now", 0),
		rec("soon", 24*time.Hour),
		rec("fails", 48*time.Hour),
		rec("unchanged", 72*time.Hour),
		rec("edge", 14*24*time.Hour),
		rec("far", 30*24*time.Hour),
	}}
	writer := &flakyWriter{failID: "fails"}

	c := NewConnector(fetcher, writer, nil)
	c.now = func() time.Time { return now }

	written, err := c.Run(context.Background(), 14)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if written != 2 {
		t.Fatalf("written = %d, want 2", written)
	}

	want := []string{"now", "soon", "fails", "unchanged"}
	if len(writer.calls) != len(want) {
		t.Fatalf("upserted %v, want %v", writer.calls, want)
	}
	for i := range want {
		if writer.calls[i] != want[i] {
			t.Fatalf("upserted %v, want %v", writer.calls, want)
		}
	}

	status := c.Status()
	if status.LastWritten != 2 || status.TotalErrors != 1 || status.LastError != "" {
		t.Errorf("status = %+v", status)
	}
}

func TestConnector_FetchErrorReturned(t *testing.T) {
	c := NewConnector(&staticFetcher{name: "x", err: errors.New("dns")}, &flakyWriter{}, nil)
	if _, err := c.Run(context.Background(), 7); err == nil {
		t.Fatal("expected fetch error")
	}
	if c.Status().LastError == "" {
		t.Error("fetch error should be recorded in status")
	}
}

type blockingAdapter struct {
	name    string
	started chan struct{}
	release chan struct{}
}

func (a *blockingAdapter) Name() string { return a.name }

func (a *blockingAdapter) Run(ctx context.Context, days int) (int, error) {
	a.started <- struct{}{}
	<-a.release
	return days, nil
}

func TestPipeline_SameSourceDoesNotOverlap(t *testing.T) {
	a := &blockingAdapter{name: "a", started: make(chan struct{}, 2), release: make(chan struct{})}
	b := &blockingAdapter{name: "b", started: make(chan struct{}, 2), release: make(chan struct{})}
	p := NewPipeline([]SourceAdapter{a, b}, nil, DefaultPipelineConfig())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = p.RunSource(context.Background(), "a", 1) }()
	go func() { defer wg.Done(); _, _ = p.RunSource(context.Background(), "b", 1) }()

	// Both sources run concurrently.
	<-a.started
	<-b.started

	if _, err := p.RunSource(context.Background(), "a", 1); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	close(a.release)
	close(b.release)
	wg.Wait()

	a.release = make(chan struct{})
	close(a.release)
	if n, err := p.RunSource(context.Background(), "a", 3); err != nil || n != 3 {
		t.Fatalf("RunSource after release = %d, %v", n, err)
	}
}

func TestPipeline_UnknownSource(t *testing.T) {
	p := NewPipeline(nil, nil, DefaultPipelineConfig())
	if _, err := p.RunSource(context.Background(), "nope", 1); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
}

func TestPipeline_RunAll(t *testing.T) {
	fetchers := []SourceAdapter{
		NewConnector(&staticFetcher{name: "one"}, &flakyWriter{}, nil),
		NewConnector(&staticFetcher{name: "two", err: errors.New("down")}, &flakyWriter{}, nil),
	}
	p := NewPipeline(fetchers, nil, DefaultPipelineConfig())

	counts, err := p.RunAll(context.Background(), 7)
	if err == nil {
		t.Fatal("expected error from failing source")
	}
	if len(counts) != 2 {
		t.Fatalf("counts = %v", counts)
	}
	if got := p.Sources(); len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("Sources() = %v", got)
	}
}
