package enrichment

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/STRATINT/eventcatalog/internal/audit"
	"github.com/STRATINT/eventcatalog/internal/models"
)

// Reason tells the rules provider why it was invoked.
type Reason string

const (
	ReasonRules    Reason = "rules"
	ReasonFallback Reason = "fallback"
)

var (
	ageRange      = regexp.MustCompile(`\b(\d{1,2})\s*-\s*(\d{1,2})\s*(let|roku|years)?\b`)
	agePlus       = regexp.MustCompile(`\b(\d{1,2})\s*\+\s*(let|roku|years)?\b`)
	ageFrom       = regexp.MustCompile(`\bod\s*(\d{1,2})\s*(let|roku)\b`)
	ageForKids    = regexp.MustCompile(`\bpro děti\s*(\d{1,2})\s*-\s*(\d{1,2})\b`)
	czechLetters  = regexp.MustCompile(`[áéěíóúůýřžščďťň]`)
	kidKeywords   = []string{"děti", "dets", "rodinn", "family", "kids", "pohádk", "loutk"}
	indoorWords   = []string{"divadl", "kino", "hala", "vnitř", "interiér", "museum", "muze"}
	outdoorWords  = []string{"venku", "park", "les", "zahrad", "venkovn", "outdoor"}
	englishWords  = []string{"english", "workshop", "kids", "family"}
	categoryRules = []struct {
		category models.Category
		keywords []string
	}{
		{models.CategoryTheatre, []string{"divadl", "loutk", "představ"}},
		{models.CategoryMusic, []string{"koncert", "hudb", "kapel", "zpěv"}},
		{models.CategoryFestival, []string{"festival", "fest"}},
		{models.CategoryWorkshop, []string{"díln", "workshop", "tvořiv", "kreativ"}},
		{models.CategoryEducation, []string{"přednáš", "eduk", "vzděl"}},
		{models.CategorySports, []string{"sport", "běh", "turnaj", "závod"}},
		{models.CategoryNature, []string{"přírod", "les", "zoo", "zvířat"}},
		{models.CategoryExhibition, []string{"výstav", "expoz"}},
	}
)

// RulesProvider derives enrichment fields from keyword and pattern
// heuristics. It makes no external calls.
type RulesProvider struct {
	recorder *audit.Recorder
}

// NewRulesProvider creates a rules provider that logs to recorder.
func NewRulesProvider(recorder *audit.Recorder) *RulesProvider {
	return &RulesProvider{recorder: recorder}
}

type rulesInput struct {
	Title          string  `json:"title"`
	DescriptionRaw *string `json:"description_raw"`
	LocationName   *string `json:"location_name"`
}

type rulesPrompt struct {
	Reason Reason     `json:"reason"`
	Input  rulesInput `json:"input"`
}

// Enrich derives fields for ev and records a log entry with status
// fallback when reason is ReasonFallback and success otherwise.
func (p *RulesProvider) Enrich(ctx context.Context, ev *models.Event, reason Reason) Outcome {
	input := rulesInput{
		Title:          ev.Title,
		DescriptionRaw: optionalText(ev.RawDescription()),
		LocationName:   optionalText(ev.LocationLabel()),
	}
	fields := DeriveFields(input.Title, ev.RawDescription(), ev.LocationLabel())

	prompt, err := encodeJSON(rulesPrompt{Reason: reason, Input: input})
	if err != nil {
		return Outcome{Err: fmt.Errorf("failed to encode rules prompt: %w", err)}
	}
	response, err := encodeJSON(fields)
	if err != nil {
		return Outcome{Err: fmt.Errorf("failed to encode rules response: %w", err)}
	}

	status := models.LogStatusSuccess
	if reason == ReasonFallback {
		status = models.LogStatusFallback
	}
	logID, err := p.recorder.Record(ctx, ev.ID, models.EnrichmentModeRules, prompt, models.LogOutcome{
		Status:   status,
		Response: &response,
	})
	if err != nil {
		return Outcome{Err: err}
	}

	return Outcome{Result: &Result{Fields: fields, Mode: models.EnrichmentModeRules, LogID: logID}}
}

// DeriveFields applies the heuristics to an event's text.
func DeriveFields(title, description, location string) Fields {
	text := collapseWhitespace(strings.ToLower(title + " " + description))

	ageMin, ageMax := extractAgeRange(text)
	placeText := text
	if location != "" {
		placeText += " " + collapseWhitespace(strings.ToLower(location))
	}

	indoorOutdoor := detectIndoorOutdoor(placeText)
	category := detectCategory(text)
	language := detectLanguage(text)

	return Fields{
		KidFriendly:   detectKidFriendly(text, ageMin, ageMax),
		AgeMin:        ageMin,
		AgeMax:        ageMax,
		IndoorOutdoor: &indoorOutdoor,
		Category:      &category,
		Language:      &language,
		ShortSummary:  buildSummary(title, description),
	}
}

func extractAgeRange(text string) (*int, *int) {
	if m := ageRange.FindStringSubmatch(text); m != nil {
		return atoiPtr(m[1]), atoiPtr(m[2])
	}
	if m := agePlus.FindStringSubmatch(text); m != nil {
		return atoiPtr(m[1]), nil
	}
	if m := ageFrom.FindStringSubmatch(text); m != nil {
		return atoiPtr(m[1]), nil
	}
	if m := ageForKids.FindStringSubmatch(text); m != nil {
		return atoiPtr(m[1]), atoiPtr(m[2])
	}
	return nil, nil
}

func detectKidFriendly(text string, ageMin, ageMax *int) *bool {
	if ageMin != nil || ageMax != nil || containsAny(text, kidKeywords) {
		t := true
		return &t
	}
	return nil
}

func detectIndoorOutdoor(text string) models.IndoorOutdoor {
	indoor := containsAny(text, indoorWords)
	outdoor := containsAny(text, outdoorWords)
	switch {
	case indoor && outdoor:
		return models.IndoorOutdoorBoth
	case indoor:
		return models.IndoorOutdoorIndoor
	case outdoor:
		return models.IndoorOutdoorOutdoor
	}
	return models.IndoorOutdoorUnknown
}

func detectCategory(text string) models.Category {
	for _, rule := range categoryRules {
		if containsAny(text, rule.keywords) {
			return rule.category
		}
	}
	return models.CategoryOther
}

func detectLanguage(text string) models.Language {
	czech := czechLetters.MatchString(text)
	english := containsAny(text, englishWords)
	switch {
	case czech && english:
		return models.LanguageMixed
	case czech:
		return models.LanguageCzech
	case english:
		return models.LanguageEnglish
	}
	return models.LanguageUnknown
}

// buildSummary uses the description, or the title when there is none, and
// cuts it to MaxSummaryLength characters with an ellipsis.
func buildSummary(title, description string) *string {
	text := collapseWhitespace(description)
	if text == "" {
		text = strings.TrimSpace(title)
	}
	if text == "" {
		return nil
	}
	if runes := []rune(text); len(runes) > MaxSummaryLength {
		text = string(runes[:MaxSummaryLength-3]) + "..."
	}
	return &text
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func atoiPtr(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
