package enrichment

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/STRATINT/eventcatalog/internal/models"
)

const (
	// MaxSummaryLength is the summary limit in characters.
	MaxSummaryLength = 200
	minAge           = 0
	maxAge           = 120
)

var (
	indoorOutdoorValues = []models.IndoorOutdoor{
		models.IndoorOutdoorIndoor, models.IndoorOutdoorOutdoor, models.IndoorOutdoorBoth, models.IndoorOutdoorUnknown,
	}
	languageValues = []models.Language{
		models.LanguageCzech, models.LanguageEnglish, models.LanguageMixed, models.LanguageUnknown,
	}
)

// NormalizeFields maps a parsed model answer to enrichment fields. Each
// field is normalized on its own; unusable values become nil.
func NormalizeFields(parsed map[string]any) Fields {
	return Fields{
		KidFriendly:   normalizeBool(parsed["is_kid_friendly"]),
		AgeMin:        normalizeInt(parsed["age_min"], minAge, maxAge),
		AgeMax:        normalizeInt(parsed["age_max"], minAge, maxAge),
		IndoorOutdoor: normalizeEnum(parsed["indoor_outdoor"], indoorOutdoorValues),
		Category:      normalizeEnum(parsed["category"], models.Categories),
		Language:      normalizeEnum(parsed["language"], languageValues),
		ShortSummary:  normalizeSummary(parsed["short_summary"]),
		TitleI18n: buildI18n(
			normalizeTranslation(parsed["title_en"]),
			normalizeTranslation(parsed["title_uk"]),
		),
		ShortSummaryI18n: buildI18n(
			normalizeSummary(parsed["short_summary_en"]),
			normalizeSummary(parsed["short_summary_uk"]),
		),
	}
}

func normalizeBool(v any) *bool {
	var b bool
	switch val := v.(type) {
	case bool:
		b = val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "1":
			b = true
		case "false", "no", "0":
			b = false
		default:
			return nil
		}
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil
		}
		b = n != 0
	default:
		return nil
	}
	return &b
}

// normalizeInt accepts JSON numbers and numeric strings, truncating
// fractions, and rejects anything outside [lo, hi].
func normalizeInt(v any, lo, hi int) *int {
	var raw string
	switch val := v.(type) {
	case json.Number:
		raw = val.String()
	case string:
		raw = strings.TrimSpace(val)
	default:
		return nil
	}
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	f = math.Trunc(f)
	if f < float64(lo) || f > float64(hi) {
		return nil
	}
	n := int(f)
	return &n
}

func normalizeEnum[T ~string](v any, allowed []T) *T {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range allowed {
		if string(a) == s {
			val := a
			return &val
		}
	}
	return nil
}

func normalizeSummary(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if runes := []rune(s); len(runes) > MaxSummaryLength {
		s = string(runes[:MaxSummaryLength])
	}
	return &s
}

func normalizeTranslation(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func buildI18n(en, uk *string) models.I18n {
	m := models.I18n{}
	if en != nil {
		m["en"] = *en
	}
	if uk != nil {
		m["uk"] = *uk
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
