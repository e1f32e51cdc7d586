package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/STRATINT/eventcatalog/internal/ingestion"
	"github.com/STRATINT/eventcatalog/internal/jobs"
	"github.com/STRATINT/eventcatalog/internal/sources"
)

const (
	// SweepSpec runs the enrichment sweep every four hours.
	SweepSpec = "0 */4 * * *"
	// DeactivateSpec runs the deactivation sweep hourly.
	DeactivateSpec = "0 * * * *"
)

// SourceRunner runs one source by name.
type SourceRunner interface {
	RunSource(ctx context.Context, name string, days int) (int, error)
}

// Sweeper queues enrichment for events that still need it.
type Sweeper interface {
	Sweep(ctx context.Context, opts jobs.SweepOptions) (int, error)
}

// Deactivator retires events that have ended.
type Deactivator interface {
	Deactivate(ctx context.Context, grace time.Duration) (int64, error)
}

// Plan holds everything the periodic jobs need.
type Plan struct {
	Registry    sources.Registry
	Runner      SourceRunner
	Sweeper     Sweeper
	SweepLimit  int
	Deactivator Deactivator
	Grace       time.Duration
}

// Jobs returns one job per enabled source plus the enrichment and
// deactivation sweeps. Nil components are left out.
func (p Plan) Jobs() []Job {
	var out []Job
	if p.Runner != nil {
		for _, src := range p.Registry.Enabled() {
			name, days := src.Name, src.Days
			out = append(out, Job{
				Name: "source:" + name,
				Spec: src.CronSpec(),
				Run: func(ctx context.Context) error {
					_, err := p.Runner.RunSource(ctx, name, days)
					if errors.Is(err, ingestion.ErrRunInProgress) {
						return errors.Join(ErrSkipped, err)
					}
					return err
				},
			})
		}
	}
	if p.Sweeper != nil {
		out = append(out, Job{
			Name: "enrich-sweep",
			Spec: SweepSpec,
			Run: func(ctx context.Context) error {
				_, err := p.Sweeper.Sweep(ctx, jobs.SweepOptions{Limit: p.SweepLimit})
				return err
			},
		})
	}
	if p.Deactivator != nil {
		out = append(out, Job{
			Name: "deactivate",
			Spec: DeactivateSpec,
			Run: func(ctx context.Context) error {
				_, err := p.Deactivator.Deactivate(ctx, p.Grace)
				return err
			},
		})
	}
	return out
}

// Register adds every job of the plan to s.
func (s *Scheduler) Register(p Plan) error {
	for _, job := range p.Jobs() {
		if err := s.Add(job); err != nil {
			return err
		}
	}
	return nil
}
