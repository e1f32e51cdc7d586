package enrichment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/STRATINT/eventcatalog/internal/localtime"
	"github.com/STRATINT/eventcatalog/internal/models"
)

var promptInstructions = strings.Join([]string{
	"You are enriching a family event in Ostrava. Output JSON only with keys:",
	"is_kid_friendly (boolean or null), age_min (int or null), age_max (int or null),",
	`indoor_outdoor ("indoor","outdoor","both","unknown"),`,
	`category ("culture","sports","education","nature","theatre","music","festival","workshop","exhibition","other"),`,
	`language ("cs","en","mixed","unknown"),`,
	"short_summary (string, max 200 chars),",
	"title_en (string, English translation of the title),",
	"title_uk (string, Ukrainian translation of the title),",
	"short_summary_en (string, English translation of the short_summary, max 200 chars),",
	"short_summary_uk (string, Ukrainian translation of the short_summary, max 200 chars).",
	"",
	`If unsure, use null or "unknown". Keep summaries factual and concise.`,
	"Translations must preserve the original meaning. If the title is already in the target language, repeat it as-is.",
}, "\n")

type promptPayload struct {
	Title          string  `json:"title"`
	DescriptionRaw *string `json:"description_raw"`
	StartAt        *string `json:"start_at"`
	EndAt          *string `json:"end_at"`
	LocationName   *string `json:"location_name"`
	SourceURL      string  `json:"source_url"`
}

// BuildPrompt renders the enrichment prompt for ev: fixed schema
// instructions followed by the event as compact JSON.
func BuildPrompt(ev *models.Event) (string, error) {
	payload := promptPayload{
		Title:          ev.Title,
		DescriptionRaw: optionalText(ev.RawDescription()),
		LocationName:   optionalText(ev.LocationLabel()),
		SourceURL:      ev.SourceURL,
	}
	if !ev.StartAt.IsZero() {
		payload.StartAt = isoTime(ev.StartAt)
	}
	if ev.EndAt != nil {
		payload.EndAt = isoTime(*ev.EndAt)
	}

	data, err := encodeJSON(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode prompt payload: %w", err)
	}
	return promptInstructions + "\n\n" + data, nil
}

func isoTime(t time.Time) *string {
	s := localtime.In(t).Format(time.RFC3339)
	return &s
}

func optionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// encodeJSON marshals v compactly without HTML escaping.
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
