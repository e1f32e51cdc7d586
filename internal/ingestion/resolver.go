package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/STRATINT/eventcatalog/internal/models"
)

// MatchTier names the cascade stage that linked a record to an existing event.
type MatchTier string

const (
	MatchNone          MatchTier = ""
	MatchFingerprint   MatchTier = "fingerprint"
	MatchRelatedSource MatchTier = "related_source"
	MatchURLID         MatchTier = "url_id"
	MatchFuzzy         MatchTier = "fuzzy"
)

// Fuzzy thresholds in percent.
const (
	titleThresholdWithLocation = 80.0
	locationThreshold          = 70.0
	titleThresholdAlone        = 90.0
)

// DefaultMaxChainDepth bounds duplicate-chain traversal.
const DefaultMaxChainDepth = 10

// ResolverConfig holds the static matching tables.
type ResolverConfig struct {
	// RelatedSources lists, per source, the sources that publish the same
	// upstream identifiers.
	RelatedSources map[string][]string

	// URLIDPatterns extract a numeric listing id from a source URL. The
	// first capture group is the id.
	URLIDPatterns []*regexp.Regexp

	MaxChainDepth int
}

// DefaultResolverConfig returns the tables for the Ostrava sources.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		RelatedSources: map[string][]string{
			"visitostrava": {"ostravainfo"},
			"ostravainfo":  {"visitostrava"},
		},
		URLIDPatterns: []*regexp.Regexp{
			regexp.MustCompile(`/(\d+)-[^/]+\.html$`),
			regexp.MustCompile(`/(\d{6,})$`),
		},
		MaxChainDepth: DefaultMaxChainDepth,
	}
}

// ExtractURLID returns the numeric id embedded in rawURL, or "".
func (c ResolverConfig) ExtractURLID(rawURL string) string {
	for _, pattern := range c.URLIDPatterns {
		if m := pattern.FindStringSubmatch(rawURL); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

// DuplicateResolver decides whether a record describes an event the catalog
// already holds, and walks duplicate chains to their root.
type DuplicateResolver struct {
	repo   EventRepository
	cfg    ResolverConfig
	logger *slog.Logger
}

// NewDuplicateResolver creates a resolver over repo.
func NewDuplicateResolver(repo EventRepository, cfg ResolverConfig, logger *slog.Logger) *DuplicateResolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxChainDepth <= 0 {
		cfg.MaxChainDepth = DefaultMaxChainDepth
	}
	return &DuplicateResolver{
		repo:   repo,
		cfg:    cfg,
		logger: logger.With("component", "duplicate_resolver"),
	}
}

// Config returns the resolver's matching tables.
func (r *DuplicateResolver) Config() ResolverConfig {
	return r.cfg
}

// FindDuplicateCandidate runs the match cascade and returns the first hit.
// A nil event means the record is new to the catalog.
func (r *DuplicateResolver) FindDuplicateCandidate(ctx context.Context, rec models.EventData) (*models.Event, MatchTier, error) {
	fingerprint := rec.Fingerprint
	if fingerprint == "" {
		fingerprint = Fingerprint(rec.Title, rec.StartAt, rec.Venue)
	}

	match, err := r.repo.FindRootByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, MatchNone, fmt.Errorf("failed to match fingerprint: %w", err)
	}
	if match != nil {
		return match, MatchFingerprint, nil
	}

	for _, related := range r.cfg.RelatedSources[rec.Source] {
		match, err = r.repo.FindBySourceEventID(ctx, related, rec.SourceEventID)
		if err != nil {
			return nil, MatchNone, fmt.Errorf("failed to match related source %s: %w", related, err)
		}
		if match != nil {
			return match, MatchRelatedSource, nil
		}
	}

	if urlID := r.cfg.ExtractURLID(rec.SourceURL); urlID != "" {
		match, err = r.repo.FindRootBySourceURLID(ctx, urlID, rec.Source)
		if err != nil {
			return nil, MatchNone, fmt.Errorf("failed to match url id: %w", err)
		}
		if match != nil {
			return match, MatchURLID, nil
		}
	}

	match, err = r.findSimilar(ctx, rec)
	if err != nil {
		return nil, MatchNone, err
	}
	if match != nil {
		return match, MatchFuzzy, nil
	}
	return nil, MatchNone, nil
}

func (r *DuplicateResolver) findSimilar(ctx context.Context, rec models.EventData) (*models.Event, error) {
	title := NormalizeText(rec.Title)
	if title == "" {
		return nil, nil
	}
	location := NormalizeText(rec.LocationLabel())

	candidates, err := r.repo.FindRootCandidatesAt(ctx, rec.StartAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}

	var best *models.Event
	bestScore := 0.0

	for i := range candidates {
		candidate := &candidates[i]
		if candidate.Status == models.EventStatusRejected || !candidate.IsRoot() {
			continue
		}

		candidateTitle := NormalizeText(candidate.Title)
		if candidateTitle == "" {
			continue
		}
		titleScore := SimilarText(title, candidateTitle)

		candidateLocation := NormalizeText(candidate.LocationLabel())

		var isDuplicate bool
		if location != "" && candidateLocation != "" {
			locationScore := SimilarText(location, candidateLocation)
			isDuplicate = titleScore >= titleThresholdWithLocation && locationScore >= locationThreshold
		} else {
			isDuplicate = titleScore >= titleThresholdAlone
		}

		if isDuplicate && titleScore > bestScore {
			best = candidate
			bestScore = titleScore
		}
	}

	if best != nil {
		r.logger.Debug("fuzzy duplicate matched",
			"event_id", best.ID,
			"source", rec.Source,
			"source_event_id", rec.SourceEventID,
			"title_score", bestScore,
		)
	}
	return best, nil
}

// ResolveRootID follows duplicate_of pointers up to the root. A missing
// parent ends the walk at the current node; so does exceeding the depth
// bound, which is logged as a probable cycle.
func (r *DuplicateResolver) ResolveRootID(ctx context.Context, event *models.Event) (int64, error) {
	current := event
	depth := 0

	for current.DuplicateOfEventID != nil {
		depth++
		if depth > r.cfg.MaxChainDepth {
			r.logger.Warn("circular or excessively deep duplicate chain detected",
				"event_id", event.ID,
				"current_id", current.ID,
				"depth", depth,
			)
			return current.ID, nil
		}

		parent, err := r.repo.GetByID(ctx, *current.DuplicateOfEventID)
		if err != nil {
			return 0, fmt.Errorf("failed to load duplicate parent %d: %w", *current.DuplicateOfEventID, err)
		}
		if parent == nil {
			r.logger.Warn("broken duplicate chain",
				"event_id", event.ID,
				"current_id", current.ID,
				"missing_parent_id", *current.DuplicateOfEventID,
			)
			break
		}
		current = parent
	}

	return current.ID, nil
}
