package enrichment

import (
	"maps"

	"github.com/STRATINT/eventcatalog/internal/models"
)

// Fields is the derived metadata an enrichment run produces.
type Fields struct {
	KidFriendly      *bool                 `json:"kid_friendly"`
	AgeMin           *int                  `json:"age_min"`
	AgeMax           *int                  `json:"age_max"`
	IndoorOutdoor    *models.IndoorOutdoor `json:"indoor_outdoor"`
	Category         *models.Category      `json:"category"`
	Language         *models.Language      `json:"language"`
	ShortSummary     *string               `json:"short_summary"`
	TitleI18n        models.I18n           `json:"title_i18n,omitempty"`
	ShortSummaryI18n models.I18n           `json:"short_summary_i18n,omitempty"`
}

// Apply overwrites the enrichment columns of ev, nil values included. A
// missing summary is filled from the short summary.
func (f Fields) Apply(ev *models.Event) {
	ev.KidFriendly = f.KidFriendly
	ev.AgeMin = f.AgeMin
	ev.AgeMax = f.AgeMax
	ev.IndoorOutdoor = f.IndoorOutdoor
	ev.Category = f.Category
	ev.Language = f.Language
	ev.ShortSummary = f.ShortSummary
	ev.TitleI18n = maps.Clone(f.TitleI18n)
	ev.ShortSummaryI18n = maps.Clone(f.ShortSummaryI18n)

	if (ev.Summary == nil || *ev.Summary == "") && f.ShortSummary != nil {
		s := *f.ShortSummary
		ev.Summary = &s
	}
}
