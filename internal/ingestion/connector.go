package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/STRATINT/eventcatalog/internal/models"
)

// SourceAdapter ingests one source: it produces normalized records for the
// next days and writes them, returning how many writes happened.
type SourceAdapter interface {
	Name() string
	Run(ctx context.Context, days int) (int, error)
}

// RecordFetcher scrapes a source into normalized records. Implementations
// log and skip records they cannot parse.
type RecordFetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]models.EventData, error)
}

// RecordWriter persists one normalized record.
type RecordWriter interface {
	Upsert(ctx context.Context, rec models.EventData) (bool, error)
}

// ConnectorStatus is the last known state of a connector.
type ConnectorStatus struct {
	Name         string
	LastRun      time.Time
	LastDuration time.Duration
	LastError    string
	LastWritten  int
	TotalWritten int64
	TotalErrors  int64
}

// Connector adapts a RecordFetcher to the SourceAdapter contract: it drops
// records outside [now, now+days) and upserts the rest one by one.
type Connector struct {
	fetcher RecordFetcher
	writer  RecordWriter
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	status ConnectorStatus
}

// NewConnector creates a connector for fetcher.
func NewConnector(fetcher RecordFetcher, writer RecordWriter, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		fetcher: fetcher,
		writer:  writer,
		logger:  logger.With("component", "connector", "source", fetcher.Name()),
		now:     time.Now,
		status:  ConnectorStatus{Name: fetcher.Name()},
	}
}

// Name returns the source name.
func (c *Connector) Name() string {
	return c.fetcher.Name()
}

// Run fetches, filters and upserts. Per-record failures are logged and
// skipped; only a failed fetch is returned as an error.
func (c *Connector) Run(ctx context.Context, days int) (int, error) {
	start := c.now()
	until := start.AddDate(0, 0, days)

	records, err := c.fetcher.Fetch(ctx)
	if err != nil {
		c.record(start, 0, 1, err)
		return 0, fmt.Errorf("failed to fetch %s: %w", c.Name(), err)
	}

	written, failed, skipped := 0, 0, 0
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		if !InWindow(rec.StartAt, start, until) {
			skipped++
			continue
		}
		ok, err := c.writer.Upsert(ctx, rec)
		if err != nil {
			failed++
			c.logger.Error("failed to upsert record",
				"source_event_id", rec.SourceEventID,
				"source_url", rec.SourceURL,
				"error", err,
			)
			continue
		}
		if ok {
			written++
		}
	}

	c.logger.Info("source run completed",
		"fetched", len(records),
		"written", written,
		"skipped", skipped,
		"failed", failed,
		"duration", c.now().Sub(start),
	)
	c.record(start, written, failed, nil)
	return written, ctx.Err()
}

// Status returns a snapshot of the connector state.
func (c *Connector) Status() ConnectorStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connector) record(start time.Time, written, failed int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.LastRun = start
	c.status.LastDuration = c.now().Sub(start)
	c.status.LastWritten = written
	c.status.TotalWritten += int64(written)
	c.status.TotalErrors += int64(failed)
	if err != nil {
		c.status.LastError = err.Error()
	} else {
		c.status.LastError = ""
	}
}

// InWindow reports whether startAt falls in [from, until).
func InWindow(startAt, from, until time.Time) bool {
	return !startAt.Before(from) && startAt.Before(until)
}
