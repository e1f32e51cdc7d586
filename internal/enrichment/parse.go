package enrichment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidJSON is returned when a backend answer is not a JSON object.
var ErrInvalidJSON = errors.New("invalid JSON response")

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*({.+})\\s*```")

// ParseResponse extracts the JSON object from a model answer, tolerating a
// surrounding markdown code fence. Numbers are kept as json.Number so the
// normalizers can tell integers from strings.
func ParseResponse(content string) (map[string]any, error) {
	jsonStr := content
	if matches := fencedJSON.FindStringSubmatch(content); len(matches) > 1 {
		jsonStr = matches[1]
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(jsonStr)))
	dec.UseNumber()

	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidJSON)
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %T", ErrInvalidJSON, parsed)
	}
	return obj, nil
}
