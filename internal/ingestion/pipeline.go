package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrRunInProgress is returned when a source is already being ingested.
var ErrRunInProgress = errors.New("source run already in progress")

// ErrUnknownSource is returned for a source name no adapter is registered for.
var ErrUnknownSource = errors.New("unknown source")

// Pipeline runs source adapters. Runs of the same source never overlap;
// different sources run concurrently.
type Pipeline struct {
	adapters map[string]SourceAdapter
	locks    map[string]*sync.Mutex
	logger   *slog.Logger
	config   PipelineConfig
}

// PipelineConfig holds configuration for RunAll.
type PipelineConfig struct {
	ConcurrentSources int
}

// DefaultPipelineConfig returns sensible defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{ConcurrentSources: 4}
}

// NewPipeline registers adapters by name.
func NewPipeline(adapters []SourceAdapter, logger *slog.Logger, config PipelineConfig) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ConcurrentSources <= 0 {
		config.ConcurrentSources = 1
	}
	p := &Pipeline{
		adapters: make(map[string]SourceAdapter, len(adapters)),
		locks:    make(map[string]*sync.Mutex, len(adapters)),
		logger:   logger.With("component", "pipeline"),
		config:   config,
	}
	for _, a := range adapters {
		p.adapters[a.Name()] = a
		p.locks[a.Name()] = &sync.Mutex{}
	}
	return p
}

// Sources lists registered source names in order.
func (p *Pipeline) Sources() []string {
	names := make([]string, 0, len(p.adapters))
	for name := range p.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunSource ingests one source for the next days. It returns
// ErrRunInProgress instead of waiting when the source is already running.
func (p *Pipeline) RunSource(ctx context.Context, name string, days int) (int, error) {
	adapter, ok := p.adapters[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}

	lock := p.locks[name]
	if !lock.TryLock() {
		p.logger.Warn("skipping overlapping source run", "source", name)
		return 0, ErrRunInProgress
	}
	defer lock.Unlock()

	p.logger.Info("starting source run", "source", name, "days", days)
	return adapter.Run(ctx, days)
}

// RunAll ingests every source concurrently, bounded by ConcurrentSources.
// It returns the written count per source and the first error seen.
func (p *Pipeline) RunAll(ctx context.Context, days int) (map[string]int, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		counts   = make(map[string]int, len(p.adapters))
	)
	semaphore := make(chan struct{}, p.config.ConcurrentSources)

	for _, name := range p.Sources() {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			n, err := p.RunSource(ctx, name, days)
			mu.Lock()
			defer mu.Unlock()
			counts[name] = n
			if err != nil {
				p.logger.Error("source run failed", "source", name, "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}(name)
	}

	wg.Wait()
	return counts, firstErr
}
