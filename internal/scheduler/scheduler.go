package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/STRATINT/eventcatalog/internal/localtime"
)

// Job is a named periodic task.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// ErrSkipped may be returned by a job that had nothing to do because the
// same work is already running elsewhere. It is logged at info level.
var ErrSkipped = errors.New("job skipped")

// Scheduler runs jobs on cron schedules in Europe/Prague. A job never
// overlaps with itself; different jobs run concurrently.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	jobs   map[string]cron.EntryID
}

// New creates a stopped scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	cronLogger := cronAdapter{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(localtime.Zone()),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Add registers job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	id, err := s.cron.AddFunc(job.Spec, func() { s.execute(job) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", job.Spec, job.Name, err)
	}
	s.jobs[job.Name] = id
	s.logger.Info("scheduled job", "job", job.Name, "spec", job.Spec)
	return nil
}

// Start runs the scheduler in the background until ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	parent := s.ctx
	count := len(s.jobs)
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-parent.Done():
		}
	}()
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", count)
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Next returns the next activation of the named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Schedule.Next(time.Now()), true
}

func (s *Scheduler) execute(job Job) {
	start := time.Now()
	s.logger.Info("job started", "job", job.Name)

	err := job.Run(s.ctx)
	switch {
	case errors.Is(err, ErrSkipped):
		s.logger.Info("job skipped", "job", job.Name, "reason", err)
	case err != nil:
		s.logger.Error("job failed", "job", job.Name, "duration", time.Since(start), "error", err)
	default:
		s.logger.Info("job completed", "job", job.Name, "duration", time.Since(start))
	}
}

// cronAdapter routes cron's internal logging to slog.
type cronAdapter struct {
	logger *slog.Logger
}

func (a cronAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a cronAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error(msg, append(keysAndValues, "error", err)...)
}
