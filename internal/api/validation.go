package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/STRATINT/eventcatalog/internal/catalog"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// parseFilters reads age_min, age_max and limit. A zero limit lets the
// catalog apply its default.
func parseFilters(r *http.Request) (catalog.AgeRange, int, error) {
	var age catalog.AgeRange
	q := r.URL.Query()

	for _, f := range []struct {
		name string
		dst  **int
	}{
		{"age_min", &age.Min},
		{"age_max", &age.Max},
	} {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 120 {
			return age, 0, ValidationError{Field: f.name, Message: "must be an integer between 0 and 120"}
		}
		*f.dst = &n
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return age, 0, ValidationError{Field: "limit", Message: "must be a positive integer"}
		}
		limit = n
	}
	return age, limit, nil
}
