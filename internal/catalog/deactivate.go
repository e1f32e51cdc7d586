package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultGracePeriod keeps finished events listed for a while.
const DefaultGracePeriod = 2 * time.Hour

// EndedEventStore flips is_active for events that are over.
type EndedEventStore interface {
	DeactivateEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Deactivator hides events whose end, or start when no end is known, lies
// before now minus a grace period.
type Deactivator struct {
	store  EndedEventStore
	logger *slog.Logger
	now    func() time.Time
}

// NewDeactivator creates a deactivator.
func NewDeactivator(store EndedEventStore, logger *slog.Logger) *Deactivator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deactivator{store: store, logger: logger.With("component", "deactivator"), now: time.Now}
}

// Deactivate returns the number of events it deactivated. A negative grace
// is treated as zero.
func (d *Deactivator) Deactivate(ctx context.Context, grace time.Duration) (int64, error) {
	if grace < 0 {
		grace = 0
	}
	cutoff := d.now().Add(-grace)
	n, err := d.store.DeactivateEndedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate past events: %w", err)
	}
	d.logger.Info("deactivated past events", "count", n, "cutoff", cutoff)
	return n, nil
}
