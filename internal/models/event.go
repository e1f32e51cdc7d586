package models

import (
	"time"
)

// Event is a catalog entry built from one source record. Events with a nil
// DuplicateOfEventID are roots; every other event points at the root it
// duplicates.
type Event struct {
	ID            int64  `json:"id"`
	Source        string `json:"source"`
	SourceEventID string `json:"source_event_id"`
	SourceURL     string `json:"source_url"`

	Title          string     `json:"title"`
	StartAt        time.Time  `json:"start_at"`
	EndAt          *time.Time `json:"end_at,omitempty"`
	Venue          *string    `json:"venue,omitempty"`
	LocationName   *string    `json:"location_name,omitempty"`
	Address        *string    `json:"address,omitempty"`
	PriceText      *string    `json:"price_text,omitempty"`
	DescriptionRaw *string    `json:"description_raw,omitempty"`
	Description    *string    `json:"description,omitempty"`

	TitleI18n        I18n `json:"title_i18n,omitempty"`
	SummaryI18n      I18n `json:"summary_i18n,omitempty"`
	ShortSummaryI18n I18n `json:"short_summary_i18n,omitempty"`

	AgeMin             *int           `json:"age_min,omitempty"`
	AgeMax             *int           `json:"age_max,omitempty"`
	Tags               []string       `json:"tags,omitempty"`
	KidFriendly        *bool          `json:"kid_friendly,omitempty"`
	IndoorOutdoor      *IndoorOutdoor `json:"indoor_outdoor,omitempty"`
	Category           *Category      `json:"category,omitempty"`
	Language           *Language      `json:"language,omitempty"`
	Summary            *string        `json:"summary,omitempty"`
	ShortSummary       *string        `json:"short_summary,omitempty"`
	EnrichedAt         *time.Time     `json:"enriched_at,omitempty"`
	EnrichmentAttempts int            `json:"enrichment_attempts"`
	EnrichmentLogID    *int64         `json:"enrichment_log_id,omitempty"`
	NeedsReview        bool           `json:"needs_review"`

	Fingerprint        string  `json:"fingerprint"`
	DuplicateOfEventID *int64  `json:"duplicate_of_event_id,omitempty"`
	SourceURLID        *string `json:"source_url_id,omitempty"`

	Status    EventStatus `json:"status"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// IsRoot reports whether the event is canonical (not a duplicate).
func (e *Event) IsRoot() bool {
	return e.DuplicateOfEventID == nil
}

// IsEnriched reports whether enrichment already produced a summary.
func (e *Event) IsEnriched() bool {
	return e.EnrichedAt != nil && e.ShortSummary != nil
}

// LocationLabel returns the location name, falling back to the venue.
func (e *Event) LocationLabel() string {
	if e.LocationName != nil {
		return *e.LocationName
	}
	if e.Venue != nil {
		return *e.Venue
	}
	return ""
}

// RawDescription returns the raw description, falling back to the
// normalized one.
func (e *Event) RawDescription() string {
	if e.DescriptionRaw != nil {
		return *e.DescriptionRaw
	}
	if e.Description != nil {
		return *e.Description
	}
	return ""
}

// I18n maps a language code to localized text.
type I18n map[string]string

// EventStatus is the moderation state of an event.
type EventStatus string

const (
	EventStatusNew      EventStatus = "new"
	EventStatusApproved EventStatus = "approved"
	EventStatusRejected EventStatus = "rejected"
)

// IndoorOutdoor classifies where an event takes place.
type IndoorOutdoor string

const (
	IndoorOutdoorIndoor  IndoorOutdoor = "indoor"
	IndoorOutdoorOutdoor IndoorOutdoor = "outdoor"
	IndoorOutdoorBoth    IndoorOutdoor = "both"
	IndoorOutdoorUnknown IndoorOutdoor = "unknown"
)

// Category is the primary classification of a family event.
type Category string

const (
	CategoryCulture    Category = "culture"
	CategorySports     Category = "sports"
	CategoryEducation  Category = "education"
	CategoryNature     Category = "nature"
	CategoryTheatre    Category = "theatre"
	CategoryMusic      Category = "music"
	CategoryFestival   Category = "festival"
	CategoryWorkshop   Category = "workshop"
	CategoryExhibition Category = "exhibition"
	CategoryOther      Category = "other"
)

// Categories lists every accepted category, in prompt order.
var Categories = []Category{
	CategoryCulture, CategorySports, CategoryEducation, CategoryNature, CategoryTheatre,
	CategoryMusic, CategoryFestival, CategoryWorkshop, CategoryExhibition, CategoryOther,
}

// Language is the detected language of the source listing.
type Language string

const (
	LanguageCzech   Language = "cs"
	LanguageEnglish Language = "en"
	LanguageMixed   Language = "mixed"
	LanguageUnknown Language = "unknown"
)

// EventData is the normalized record a source adapter hands to the upsert
// path. An empty Fingerprint asks the pipeline to compute it.
type EventData struct {
	Source         string
	SourceURL      string
	SourceEventID  string
	Title          string
	StartAt        time.Time
	EndAt          *time.Time
	Venue          *string
	LocationName   *string
	Address        *string
	PriceText      *string
	Description    *string
	DescriptionRaw *string
	AgeMin         *int
	AgeMax         *int
	Tags           []string
	KidFriendly    *bool
	Fingerprint    string
}

// LocationLabel returns the location name, falling back to the venue.
func (d EventData) LocationLabel() string {
	if d.LocationName != nil {
		return *d.LocationName
	}
	if d.Venue != nil {
		return *d.Venue
	}
	return ""
}
