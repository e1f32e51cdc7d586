package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/STRATINT/eventcatalog/internal/ingestion"
	"github.com/STRATINT/eventcatalog/internal/models"
)

const uniqueViolation = "23505"

const eventColumns = `id, source, source_event_id, source_url, source_url_id, title, title_i18n,
	start_at, end_at, venue, location_name, address, price_text, description_raw, description,
	summary, summary_i18n, short_summary, short_summary_i18n, age_min, age_max, tags,
	kid_friendly, indoor_outdoor, category, language, enriched_at, enrichment_attempts,
	enrichment_log_id, needs_review, fingerprint, duplicate_of_event_id, status, is_active,
	created_at, updated_at`

// PostgresEventRepository stores catalog events in PostgreSQL.
type PostgresEventRepository struct {
	db *sql.DB
}

var _ ingestion.EventRepository = (*PostgresEventRepository)(nil)

// NewPostgresEventRepository creates a new PostgreSQL event repository.
func NewPostgresEventRepository(db *sql.DB) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

// GetByID retrieves an event by its ID.
func (r *PostgresEventRepository) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	return r.queryOne(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
}

// FindBySourceEventID retrieves the event a source already produced.
func (r *PostgresEventRepository) FindBySourceEventID(ctx context.Context, source, sourceEventID string) (*models.Event, error) {
	return r.queryOne(ctx,
		`SELECT `+eventColumns+` FROM events WHERE source = $1 AND source_event_id = $2`,
		source, sourceEventID)
}

// FindRootByFingerprint returns the oldest root event with the fingerprint.
func (r *PostgresEventRepository) FindRootByFingerprint(ctx context.Context, fingerprint string) (*models.Event, error) {
	return r.queryOne(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE fingerprint = $1 AND duplicate_of_event_id IS NULL
		ORDER BY id LIMIT 1`,
		fingerprint)
}

// FindRootBySourceURLID returns the oldest root from another source whose
// URL embeds urlID.
func (r *PostgresEventRepository) FindRootBySourceURLID(ctx context.Context, urlID, excludeSource string) (*models.Event, error) {
	return r.queryOne(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE source_url_id = $1 AND source <> $2 AND duplicate_of_event_id IS NULL
		ORDER BY id LIMIT 1`,
		urlID, excludeSource)
}

// FindRootCandidatesAt lists non-rejected roots starting exactly at startAt.
func (r *PostgresEventRepository) FindRootCandidatesAt(ctx context.Context, startAt time.Time) ([]models.Event, error) {
	return r.queryMany(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE start_at = $1 AND status <> 'rejected' AND duplicate_of_event_id IS NULL
		ORDER BY id`,
		startAt)
}

// Insert stores a new event and assigns its ID and timestamps. A unique
// violation is reported as ingestion.ErrDuplicateKey.
func (r *PostgresEventRepository) Insert(ctx context.Context, event *models.Event) error {
	args, err := eventArgs(event)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO events (
			source, source_event_id, source_url, source_url_id, title, title_i18n,
			start_at, end_at, venue, location_name, address, price_text, description_raw, description,
			summary, summary_i18n, short_summary, short_summary_i18n, age_min, age_max, tags,
			kid_friendly, indoor_outdoor, category, language, enriched_at, enrichment_attempts,
			enrichment_log_id, needs_review, fingerprint, duplicate_of_event_id, status, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33
		)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRowContext(ctx, query, args...).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return mapWriteError("insert event", err)
	}
	return nil
}

const updateScrapedQuery = `
	UPDATE events SET
		source = $2, source_event_id = $3, source_url = $4, source_url_id = $5, title = $6,
		start_at = $7, end_at = $8, venue = $9, location_name = $10, address = $11,
		price_text = $12, description_raw = $13, description = $14, fingerprint = $15,
		age_min = COALESCE($16, age_min), age_max = COALESCE($17, age_max),
		kid_friendly = COALESCE($18, kid_friendly), tags = COALESCE($19, tags),
		updated_at = NOW()
	WHERE id = $1
`

// UpdateScraped writes the source-owned columns of event id. Age bounds,
// kid-friendliness and tags keep their stored value when rec leaves them
// empty; derived columns and the attempt counter are not touched.
func (r *PostgresEventRepository) UpdateScraped(ctx context.Context, id int64, rec models.EventData, sourceURLID *string) error {
	var tags any
	if rec.Tags != nil {
		tags = pq.Array(rec.Tags)
	}

	result, err := r.db.ExecContext(ctx, updateScrapedQuery,
		id, rec.Source, rec.SourceEventID, rec.SourceURL, sourceURLID, rec.Title,
		rec.StartAt, rec.EndAt, rec.Venue, rec.LocationName, rec.Address,
		rec.PriceText, rec.DescriptionRaw, rec.Description, rec.Fingerprint,
		rec.AgeMin, rec.AgeMax, rec.KidFriendly, tags,
	)
	if err != nil {
		return mapWriteError("update scraped event", err)
	}
	return requireRow(result)
}

// SaveEnrichment writes the enrichment-owned columns of event.
func (r *PostgresEventRepository) SaveEnrichment(ctx context.Context, event *models.Event) error {
	titleI18n, err := i18nValue(event.TitleI18n)
	if err != nil {
		return err
	}
	summaryI18n, err := i18nValue(event.SummaryI18n)
	if err != nil {
		return err
	}
	shortI18n, err := i18nValue(event.ShortSummaryI18n)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE events SET
			title_i18n = $2, summary = $3, summary_i18n = $4, short_summary = $5,
			short_summary_i18n = $6, age_min = $7, age_max = $8, kid_friendly = $9,
			indoor_outdoor = $10, category = $11, language = $12, enriched_at = $13,
			enrichment_log_id = $14, needs_review = $15, updated_at = NOW()
		WHERE id = $1
	`,
		event.ID, titleI18n, event.Summary, summaryI18n, event.ShortSummary,
		shortI18n, event.AgeMin, event.AgeMax, event.KidFriendly,
		event.IndoorOutdoor, event.Category, event.Language, event.EnrichedAt,
		event.EnrichmentLogID, event.NeedsReview,
	)
	if err != nil {
		return fmt.Errorf("failed to save enrichment: %w", err)
	}
	return requireRow(result)
}

// MarkNeedsReview flags event id for manual review.
func (r *PostgresEventRepository) MarkNeedsReview(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE events SET needs_review = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to flag event for review: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ingestion.ErrEventNotFound
	}
	return nil
}

// IncrementEnrichmentAttempts bumps the attempt counter atomically and
// returns the new value.
func (r *PostgresEventRepository) IncrementEnrichmentAttempts(ctx context.Context, id int64) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE events SET enrichment_attempts = enrichment_attempts + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING enrichment_attempts
	`, id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ingestion.ErrEventNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment enrichment attempts: %w", err)
	}
	return attempts, nil
}

// ListEnrichmentCandidates selects active, non-rejected roots for a sweep,
// ordered by start time.
func (r *PostgresEventRepository) ListEnrichmentCandidates(ctx context.Context, q models.EnrichmentCandidateQuery) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE is_active AND status <> 'rejected' AND duplicate_of_event_id IS NULL`
	var args []any
	if q.RetryFailed {
		query += ` AND enriched_at IS NULL AND enrichment_attempts > 0`
	} else {
		query += ` AND short_summary IS NULL`
	}
	if q.MaxAttempts > 0 {
		args = append(args, q.MaxAttempts)
		query += fmt.Sprintf(` AND enrichment_attempts < $%d`, len(args))
	}
	query += ` ORDER BY start_at`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return r.queryMany(ctx, query, args...)
}

// DeactivateEndedBefore clears is_active on events whose end, or start when
// no end is known, precedes cutoff.
func (r *PostgresEventRepository) DeactivateEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE events SET is_active = FALSE, updated_at = NOW()
		WHERE is_active AND COALESCE(end_at, start_at) < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deactivated events: %w", err)
	}
	return n, nil
}

// SearchCatalog applies the public catalog filters.
func (r *PostgresEventRepository) SearchCatalog(ctx context.Context, q models.CatalogQuery) ([]models.Event, error) {
	conditions := []string{"is_active", "status <> 'rejected'", "duplicate_of_event_id IS NULL"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if q.StartFrom != nil {
		add("start_at >= $%d", *q.StartFrom)
	}
	if q.StartUntil != nil {
		add("start_at <= $%d", *q.StartUntil)
	}
	if q.CreatedSince != nil {
		add("created_at >= $%d", *q.CreatedSince)
	}
	if q.AgeMax != nil {
		add("(age_min IS NULL OR age_min <= $%d)", *q.AgeMax)
	}
	if q.AgeMin != nil {
		add("(age_max IS NULL OR age_max >= $%d)", *q.AgeMin)
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY start_at`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return r.queryMany(ctx, query, args...)
}

func (r *PostgresEventRepository) queryOne(ctx context.Context, query string, args ...any) (*models.Event, error) {
	ev, err := scanEvent(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return ev, nil
}

func (r *PostgresEventRepository) queryMany(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		ev                                models.Event
		titleI18n, summaryI18n, shortI18n []byte
		tags                              pq.StringArray
	)
	err := row.Scan(
		&ev.ID, &ev.Source, &ev.SourceEventID, &ev.SourceURL, &ev.SourceURLID, &ev.Title, &titleI18n,
		&ev.StartAt, &ev.EndAt, &ev.Venue, &ev.LocationName, &ev.Address, &ev.PriceText,
		&ev.DescriptionRaw, &ev.Description,
		&ev.Summary, &summaryI18n, &ev.ShortSummary, &shortI18n, &ev.AgeMin, &ev.AgeMax, &tags,
		&ev.KidFriendly, &ev.IndoorOutdoor, &ev.Category, &ev.Language, &ev.EnrichedAt, &ev.EnrichmentAttempts,
		&ev.EnrichmentLogID, &ev.NeedsReview, &ev.Fingerprint, &ev.DuplicateOfEventID, &ev.Status, &ev.IsActive,
		&ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(tags) > 0 {
		ev.Tags = []string(tags)
	}
	for _, f := range []struct {
		raw []byte
		dst *models.I18n
	}{
		{titleI18n, &ev.TitleI18n},
		{summaryI18n, &ev.SummaryI18n},
		{shortI18n, &ev.ShortSummaryI18n},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("failed to decode i18n column: %w", err)
		}
	}
	return &ev, nil
}

// eventArgs returns the 33 column values written by Insert.
func eventArgs(ev *models.Event) ([]any, error) {
	titleI18n, err := i18nValue(ev.TitleI18n)
	if err != nil {
		return nil, err
	}
	summaryI18n, err := i18nValue(ev.SummaryI18n)
	if err != nil {
		return nil, err
	}
	shortI18n, err := i18nValue(ev.ShortSummaryI18n)
	if err != nil {
		return nil, err
	}

	var tags any
	if ev.Tags != nil {
		tags = pq.Array(ev.Tags)
	}

	return []any{
		ev.Source, ev.SourceEventID, ev.SourceURL, ev.SourceURLID, ev.Title, titleI18n,
		ev.StartAt, ev.EndAt, ev.Venue, ev.LocationName, ev.Address, ev.PriceText,
		ev.DescriptionRaw, ev.Description,
		ev.Summary, summaryI18n, ev.ShortSummary, shortI18n, ev.AgeMin, ev.AgeMax, tags,
		ev.KidFriendly, ev.IndoorOutdoor, ev.Category, ev.Language, ev.EnrichedAt, ev.EnrichmentAttempts,
		ev.EnrichmentLogID, ev.NeedsReview, ev.Fingerprint, ev.DuplicateOfEventID, string(ev.Status), ev.IsActive,
	}, nil
}

func i18nValue(m models.I18n) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode i18n column: %w", err)
	}
	return string(data), nil
}

func mapWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ingestion.ErrDuplicateKey, pqErr.Constraint)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
