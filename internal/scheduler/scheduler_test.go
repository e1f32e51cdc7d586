package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/STRATINT/eventcatalog/internal/ingestion"
	"github.com/STRATINT/eventcatalog/internal/jobs"
	"github.com/STRATINT/eventcatalog/internal/localtime"
	"github.com/STRATINT/eventcatalog/internal/sources"
)

// trigger runs the wrapped entry synchronously, chain included.
func (s *Scheduler) trigger(name string) bool {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.cron.Entry(id).WrappedJob.Run()
	return true
}

type recordingRunner struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (r *recordingRunner) RunSource(_ context.Context, name string, days int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[name] = days
	return 1, r.err
}

type fakeSweeper struct{ opts jobs.SweepOptions }

func (f *fakeSweeper) Sweep(_ context.Context, opts jobs.SweepOptions) (int, error) {
	f.opts = opts
	return 0, nil
}

type fakeDeactivator struct{ grace time.Duration }

func (f *fakeDeactivator) Deactivate(_ context.Context, grace time.Duration) (int64, error) {
	f.grace = grace
	return 3, nil
}

func TestPlanJobs(t *testing.T) {
	runner := &recordingRunner{}
	sweeper := &fakeSweeper{}
	deact := &fakeDeactivator{}
	plan := Plan{
		Registry:    sources.DefaultRegistry(),
		Runner:      runner,
		Sweeper:     sweeper,
		SweepLimit:  15,
		Deactivator: deact,
		Grace:       2 * time.Hour,
	}

	specs := map[string]string{}
	for _, job := range plan.Jobs() {
		specs[job.Name] = job.Spec
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%s: %v", job.Name, err)
		}
	}

	want := map[string]string{
		"source:visitostrava": "0 6,18 * * *",
		"source:allevents":    "0 7,19 * * *",
		"source:kulturajih":   "0 8,20 * * *",
		"source:kudyznudy":    "0 9,21 * * *",
		"enrich-sweep":        SweepSpec,
		"deactivate":          DeactivateSpec,
	}
	if len(specs) != len(want) {
		t.Fatalf("jobs = %v", specs)
	}
	for name, spec := range want {
		if specs[name] != spec {
			t.Errorf("%s spec = %q, want %q", name, specs[name], spec)
		}
	}

	if runner.calls["allevents"] != 60 || runner.calls["visitostrava"] != 14 {
		t.Errorf("source days = %v", runner.calls)
	}
	if sweeper.opts.Limit != 15 || sweeper.opts.RetryFailed {
		t.Errorf("sweep opts = %+v", sweeper.opts)
	}
	if deact.grace != 2*time.Hour {
		t.Errorf("grace = %v", deact.grace)
	}
}

func TestPlanMapsOverlapToSkip(t *testing.T) {
	plan := Plan{
		Registry: sources.DefaultRegistry(),
		Runner:   &recordingRunner{err: ingestion.ErrRunInProgress},
	}
	planned := plan.Jobs()
	if len(planned) != 4 {
		t.Fatalf("expected only source jobs, got %d", len(planned))
	}
	if err := planned[0].Run(context.Background()); !errors.Is(err, ErrSkipped) {
		t.Fatalf("expected ErrSkipped, got %v", err)
	}
}

func TestSchedulerRejectsBadSpecAndDuplicates(t *testing.T) {
	s := New(nil)
	noop := func(context.Context) error { return nil }

	if err := s.Add(Job{Name: "bad", Spec: "not a spec", Run: noop}); err == nil {
		t.Fatal("expected invalid spec error")
	}
	if err := s.Add(Job{Name: "ok", Spec: "0 6 * * *", Run: noop}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(Job{Name: "ok", Spec: "0 7 * * *", Run: noop}); err == nil {
		t.Fatal("expected duplicate name error")
	}

	next, ok := s.Next("ok")
	if !ok {
		t.Fatal("Next: job not found")
	}
	if local := next.In(localtime.Zone()); local.Hour() != 6 || local.Minute() != 0 {
		t.Errorf("next run = %v, want 06:00 Prague time", local)
	}
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	s := New(nil)
	var runs atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	err := s.Add(Job{Name: "slow", Spec: "@every 1h", Run: func(ctx context.Context) error {
		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		s.trigger("slow")
		close(done)
	}()
	<-started

	// The second activation is dropped while the first is running.
	s.trigger("slow")
	close(release)
	<-done

	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
}

func TestSchedulerStopCancelsJobs(t *testing.T) {
	s := New(nil)
	cancelled := make(chan struct{})
	started := make(chan struct{})
	err := s.Add(Job{Name: "wait", Spec: "@every 1h", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	go s.trigger("wait")
	<-started
	cancel()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("job context was not cancelled")
	}
}
