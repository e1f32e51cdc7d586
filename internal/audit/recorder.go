package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/STRATINT/eventcatalog/internal/models"
)

// MaxErrorLength bounds the error text stored on a log entry, in runes.
const MaxErrorLength = 1000

var (
	// ErrLogFinalized is returned when finishing a log that is already terminal.
	ErrLogFinalized = errors.New("enrichment log already finalized")
	// ErrLogNotFound is returned when finishing a log that does not exist.
	ErrLogNotFound = errors.New("enrichment log not found")
)

// ListQuery filters log listings.
type ListQuery struct {
	Status models.LogStatus
	Limit  int
}

// Store persists enrichment logs. Finish must only transition a pending
// entry and return ErrLogFinalized otherwise.
type Store interface {
	Create(ctx context.Context, log *models.EnrichmentLog) error
	Finish(ctx context.Context, id int64, outcome models.LogOutcome) error
	GetByID(ctx context.Context, id int64) (*models.EnrichmentLog, error)
	ListByEvent(ctx context.Context, eventID int64, query ListQuery) ([]models.EnrichmentLog, error)
}

// Recorder writes the audit trail for enrichment attempts.
type Recorder struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder backed by store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  store,
		logger: logger.With("component", "enrichment_log"),
		now:    time.Now,
	}
}

// Start records a pending attempt before the backend is called.
func (r *Recorder) Start(ctx context.Context, eventID int64, mode models.EnrichmentMode, prompt string) (*Attempt, error) {
	entry := &models.EnrichmentLog{
		EventID: eventID,
		Mode:    mode,
		Prompt:  prompt,
		Status:  models.LogStatusPending,
	}
	if err := r.store.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create enrichment log: %w", err)
	}
	return &Attempt{ID: entry.ID, recorder: r, started: r.now()}, nil
}

// Record writes an attempt that completed synchronously, such as a rules
// run, directly in its terminal state.
func (r *Recorder) Record(ctx context.Context, eventID int64, mode models.EnrichmentMode, prompt string, outcome models.LogOutcome) (int64, error) {
	if !outcome.Status.Terminal() {
		return 0, fmt.Errorf("cannot record non-terminal status %q", outcome.Status)
	}
	entry := &models.EnrichmentLog{
		EventID:          eventID,
		Mode:             mode,
		Prompt:           prompt,
		Status:           outcome.Status,
		Response:         outcome.Response,
		TokensPrompt:     outcome.TokensPrompt,
		TokensCompletion: outcome.TokensCompletion,
		DurationMs:       outcome.DurationMs,
		Error:            truncateError(outcome.Error),
	}
	if err := r.store.Create(ctx, entry); err != nil {
		return 0, fmt.Errorf("failed to create enrichment log: %w", err)
	}
	return entry.ID, nil
}

// Logs lists the attempts made for one event, newest first.
func (r *Recorder) Logs(ctx context.Context, eventID int64, query ListQuery) ([]models.EnrichmentLog, error) {
	return r.store.ListByEvent(ctx, eventID, query)
}

// Attempt is a pending log entry. It is finished exactly once.
type Attempt struct {
	ID       int64
	recorder *Recorder
	started  time.Time
}

// Elapsed returns the time since the attempt started, in milliseconds.
func (a *Attempt) Elapsed() int {
	return int(a.recorder.now().Sub(a.started).Milliseconds())
}

// Succeed marks the attempt successful.
func (a *Attempt) Succeed(ctx context.Context, response string, tokensPrompt, tokensCompletion *int) error {
	duration := a.Elapsed()
	return a.finish(ctx, models.LogOutcome{
		Status:           models.LogStatusSuccess,
		Response:         &response,
		TokensPrompt:     tokensPrompt,
		TokensCompletion: tokensCompletion,
		DurationMs:       &duration,
	})
}

// Fail marks the attempt failed. response is whatever the backend returned,
// if anything.
func (a *Attempt) Fail(ctx context.Context, response *string, cause string) error {
	duration := a.Elapsed()
	return a.finish(ctx, models.LogOutcome{
		Status:     models.LogStatusFailed,
		Response:   response,
		DurationMs: &duration,
		Error:      &cause,
	})
}

func (a *Attempt) finish(ctx context.Context, outcome models.LogOutcome) error {
	outcome.Error = truncateError(outcome.Error)
	if err := a.recorder.store.Finish(ctx, a.ID, outcome); err != nil {
		a.recorder.logger.Error("failed to finish enrichment log",
			"log_id", a.ID,
			"status", outcome.Status,
			"error", err,
		)
		return fmt.Errorf("failed to finish enrichment log %d: %w", a.ID, err)
	}
	return nil
}

func truncateError(msg *string) *string {
	if msg == nil {
		return nil
	}
	runes := []rune(*msg)
	if len(runes) <= MaxErrorLength {
		return msg
	}
	s := string(runes[:MaxErrorLength])
	return &s
}
