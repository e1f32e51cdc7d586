package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/STRATINT/eventcatalog/internal/audit"
	"github.com/STRATINT/eventcatalog/internal/models"
)

const logColumns = `id, event_id, mode, prompt, response, status, tokens_prompt, tokens_completion,
	duration_ms, error, created_at, updated_at`

// PostgresEnrichmentLogRepository stores the enrichment audit trail.
type PostgresEnrichmentLogRepository struct {
	db *sql.DB
}

var _ audit.Store = (*PostgresEnrichmentLogRepository)(nil)

// NewPostgresEnrichmentLogRepository creates a new log repository.
func NewPostgresEnrichmentLogRepository(db *sql.DB) *PostgresEnrichmentLogRepository {
	return &PostgresEnrichmentLogRepository{db: db}
}

// Create inserts a log entry and assigns its ID and timestamps.
func (r *PostgresEnrichmentLogRepository) Create(ctx context.Context, log *models.EnrichmentLog) error {
	query := `
		INSERT INTO event_enrichment_logs (
			event_id, mode, prompt, response, status, tokens_prompt, tokens_completion, duration_ms, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		log.EventID, string(log.Mode), log.Prompt, log.Response, string(log.Status),
		log.TokensPrompt, log.TokensCompletion, log.DurationMs, log.Error,
	).Scan(&log.ID, &log.CreatedAt, &log.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create enrichment log: %w", err)
	}
	return nil
}

// Finish moves a pending entry to its terminal state. The status guard in
// the WHERE clause keeps a second finish from overwriting the first.
func (r *PostgresEnrichmentLogRepository) Finish(ctx context.Context, id int64, outcome models.LogOutcome) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE event_enrichment_logs SET
			status = $2, response = $3, tokens_prompt = $4, tokens_completion = $5,
			duration_ms = $6, error = $7, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, string(outcome.Status), outcome.Response, outcome.TokensPrompt, outcome.TokensCompletion,
		outcome.DurationMs, outcome.Error)
	if err != nil {
		return fmt.Errorf("failed to finish enrichment log: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check finish result: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM event_enrichment_logs WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check enrichment log: %w", err)
	}
	if exists {
		return audit.ErrLogFinalized
	}
	return audit.ErrLogNotFound
}

// GetByID retrieves a log entry, or nil when it does not exist.
func (r *PostgresEnrichmentLogRepository) GetByID(ctx context.Context, id int64) (*models.EnrichmentLog, error) {
	log, err := scanLog(r.db.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM event_enrichment_logs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enrichment log: %w", err)
	}
	return log, nil
}

// ListByEvent returns the entries of one event, newest first.
func (r *PostgresEnrichmentLogRepository) ListByEvent(ctx context.Context, eventID int64, q audit.ListQuery) ([]models.EnrichmentLog, error) {
	query := `SELECT ` + logColumns + ` FROM event_enrichment_logs WHERE event_id = $1`
	args := []any{eventID}
	if q.Status != "" {
		args = append(args, string(q.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrichment logs: %w", err)
	}
	defer rows.Close()

	var logs []models.EnrichmentLog
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrichment log: %w", err)
		}
		logs = append(logs, *log)
	}
	return logs, rows.Err()
}

func scanLog(row rowScanner) (*models.EnrichmentLog, error) {
	var log models.EnrichmentLog
	err := row.Scan(
		&log.ID, &log.EventID, &log.Mode, &log.Prompt, &log.Response, &log.Status,
		&log.TokensPrompt, &log.TokensCompletion, &log.DurationMs, &log.Error,
		&log.CreatedAt, &log.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &log, nil
}
