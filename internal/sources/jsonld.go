package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/STRATINT/eventcatalog/internal/localtime"
	"github.com/STRATINT/eventcatalog/internal/models"
)

// ErrNoEvent is returned when a detail page carries no usable event.
var ErrNoEvent = errors.New("no event found on page")

var (
	spacePattern      = regexp.MustCompile(`\s+`)
	agePattern        = regexp.MustCompile(`(\d{1,3})\s*(?:[-–]\s*(\d{1,3}))?`)
	czechDatePattern  = regexp.MustCompile(`(?i)(\d{1,2})\.\s*([a-záéěíóúůýřžščďťň]+)\s*(\d{4}).{0,20}?(\d{1,2}:\d{2})`)
	dottedDatePattern = regexp.MustCompile(`(\d{1,2})\.\s*(\d{1,2})\.\s*(\d{4})\s*[,;]?\s*(\d{1,2})[.:](\d{2})`)
)

var czechMonths = map[string]time.Month{
	"ledna": time.January, "února": time.February, "unora": time.February,
	"března": time.March, "brezna": time.March, "dubna": time.April,
	"května": time.May, "kvetna": time.May, "června": time.June, "cervna": time.June,
	"července": time.July, "cervence": time.July, "srpna": time.August,
	"září": time.September, "zari": time.September, "října": time.October, "rijna": time.October,
	"listopadu": time.November, "prosince": time.December,
}

var ldDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// DetailParser turns a detail page into a normalized record.
type DetailParser struct {
	Source    string
	IDPattern *regexp.Regexp
}

// Parse extracts the first schema.org Event from the page's JSON-LD blocks.
// Pages without one fall back to the h1 heading and a Czech date in the
// page text.
func (p DetailParser) Parse(doc *goquery.Document, pageURL string) (*models.EventData, error) {
	var events []map[string]any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &v); err != nil {
			return
		}
		collectEvents(v, &events)
	})

	for _, node := range events {
		rec, err := p.fromJSONLD(node, pageURL)
		if err == nil {
			return rec, nil
		}
	}
	return p.fromMarkup(doc, pageURL)
}

func (p DetailParser) fromJSONLD(node map[string]any, pageURL string) (*models.EventData, error) {
	title := collapse(stringField(node, "name"))
	if title == "" {
		return nil, fmt.Errorf("%w: event has no name", ErrNoEvent)
	}
	start, ok := parseLDDate(stringField(node, "startDate"))
	if !ok {
		return nil, fmt.Errorf("%w: event has no start date", ErrNoEvent)
	}

	rec := &models.EventData{
		Source:        p.Source,
		SourceURL:     pageURL,
		SourceEventID: p.sourceEventID(pageURL),
		Title:         title,
		StartAt:       start,
	}
	if end, ok := parseLDDate(stringField(node, "endDate")); ok && !end.Before(start) {
		rec.EndAt = &end
	}

	if venue, address := parseLocation(node["location"]); venue != "" || address != "" {
		rec.Venue = optional(venue)
		rec.LocationName = optional(venue)
		rec.Address = optional(address)
	}

	if raw := strings.TrimSpace(stringField(node, "description")); raw != "" {
		rec.DescriptionRaw = &raw
		rec.Description = optional(htmlText(raw))
	}
	rec.PriceText = optional(parseOffers(node["offers"]))
	rec.AgeMin, rec.AgeMax = parseAgeRange(stringField(node, "typicalAgeRange"))
	rec.Tags = parseKeywords(node["keywords"])
	return rec, nil
}

func (p DetailParser) fromMarkup(doc *goquery.Document, pageURL string) (*models.EventData, error) {
	title := collapse(doc.Find("h1").First().Text())
	if title == "" {
		return nil, fmt.Errorf("%w: missing heading", ErrNoEvent)
	}
	start, ok := ParseCzechDateTime(collapse(doc.Find("body").Text()))
	if !ok {
		return nil, fmt.Errorf("%w: no date in %q", ErrNoEvent, title)
	}

	rec := &models.EventData{
		Source:        p.Source,
		SourceURL:     pageURL,
		SourceEventID: p.sourceEventID(pageURL),
		Title:         title,
		StartAt:       start,
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		rec.DescriptionRaw = optional(strings.TrimSpace(desc))
		rec.Description = optional(collapse(desc))
	}
	return rec, nil
}

func (p DetailParser) sourceEventID(pageURL string) string {
	if p.IDPattern != nil {
		if m := p.IDPattern.FindStringSubmatch(pageURL); len(m) > 1 && m[1] != "" {
			return m[1]
		}
	}
	return pageURL
}

// ParseCzechDateTime finds a date such as "6. června 2026 v 10:00" or
// "22. 3. 2026, 16.00" in text and returns it in Europe/Prague.
func ParseCzechDateTime(text string) (time.Time, bool) {
	if m := czechDatePattern.FindStringSubmatch(text); m != nil {
		month, ok := czechMonths[strings.ToLower(m[2])]
		if ok {
			day, _ := strconv.Atoi(m[1])
			year, _ := strconv.Atoi(m[3])
			clock, err := time.Parse("15:04", m[4])
			if err == nil {
				return time.Date(year, month, day, clock.Hour(), clock.Minute(), 0, 0, localtime.Zone()), true
			}
		}
	}

	if m := dottedDatePattern.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		hour, _ := strconv.Atoi(m[4])
		minute, _ := strconv.Atoi(m[5])
		if month >= 1 && month <= 12 && hour < 24 && minute < 60 {
			return time.Date(year, time.Month(month), day, hour, minute, 0, 0, localtime.Zone()), true
		}
	}
	return time.Time{}, false
}

func collectEvents(v any, out *[]map[string]any) {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			collectEvents(item, out)
		}
	case map[string]any:
		if isEventType(node["@type"]) {
			*out = append(*out, node)
		}
		if graph, ok := node["@graph"]; ok {
			collectEvents(graph, out)
		}
	}
}

func isEventType(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.HasSuffix(t, "Event")
	case []any:
		for _, item := range t {
			if isEventType(item) {
				return true
			}
		}
	}
	return false
}

func parseLDDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range ldDateLayouts {
		if t, err := time.ParseInLocation(layout, s, localtime.Zone()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseLocation(v any) (venue, address string) {
	switch loc := v.(type) {
	case string:
		return collapse(loc), ""
	case []any:
		if len(loc) > 0 {
			return parseLocation(loc[0])
		}
	case map[string]any:
		venue = collapse(stringField(loc, "name"))
		switch addr := loc["address"].(type) {
		case string:
			address = collapse(addr)
		case map[string]any:
			var parts []string
			for _, key := range []string{"streetAddress", "postalCode", "addressLocality"} {
				if s := collapse(stringField(addr, key)); s != "" {
					parts = append(parts, s)
				}
			}
			address = strings.Join(parts, ", ")
		}
	}
	return venue, address
}

func parseOffers(v any) string {
	switch offer := v.(type) {
	case []any:
		if len(offer) > 0 {
			return parseOffers(offer[0])
		}
	case map[string]any:
		price := stringField(offer, "price")
		if price == "" {
			price = stringField(offer, "lowPrice")
		}
		if price == "" {
			return ""
		}
		if currency := stringField(offer, "priceCurrency"); currency != "" {
			return price + " " + currency
		}
		return price
	}
	return ""
}

func parseAgeRange(s string) (*int, *int) {
	m := agePattern.FindStringSubmatch(s)
	if m == nil {
		return nil, nil
	}
	lo, err := strconv.Atoi(m[1])
	if err != nil || lo > 120 {
		return nil, nil
	}
	if m[2] == "" {
		return &lo, nil
	}
	hi, err := strconv.Atoi(m[2])
	if err != nil || hi > 120 || hi < lo {
		return &lo, nil
	}
	return &lo, &hi
}

func parseKeywords(v any) []string {
	var raw []string
	switch kw := v.(type) {
	case string:
		raw = strings.Split(kw, ",")
	case []any:
		for _, item := range kw {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	var tags []string
	for _, t := range raw {
		if t = collapse(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// stringField reads key as text; numbers are formatted without exponent.
func stringField(node map[string]any, key string) string {
	switch v := node[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func htmlText(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	return collapse(doc.Text())
}

func collapse(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
