package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/STRATINT/eventcatalog/internal/localtime"
)

const fingerprintTimeLayout = "2006-01-02 15:04"

var (
	nonWordPattern    = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Fingerprint derives the content identity of an event: normalized title,
// local start minute and normalized venue joined with "|" and hashed with
// SHA-256.
func Fingerprint(title string, startAt time.Time, venue *string) string {
	v := ""
	if venue != nil {
		v = *venue
	}

	data := foldKey(title) + "|" + localtime.In(startAt).Format(fingerprintTimeLayout) + "|" + foldKey(v)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// foldKey lower-cases and trims s. NFC first so precomposed and combining
// diacritics hash the same.
func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// NormalizeText prepares titles and locations for similarity scoring:
// lower-case, punctuation and symbols replaced by spaces, whitespace
// collapsed.
func NormalizeText(s string) string {
	normalized := foldKey(s)
	normalized = nonWordPattern.ReplaceAllString(normalized, " ")
	normalized = whitespacePattern.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// SimilarText returns the order-sensitive character similarity of a and b
// as a percentage in [0,100]. Matching characters are counted by taking the
// first longest common substring and recursing into the pieces on either
// side of it; the score is 2*matches*100 / (len(a)+len(b)) in runes.
func SimilarText(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	return float64(similarChars(ra, rb)) * 2 * 100 / float64(total)
}

func similarChars(a, b []rune) int {
	posA, posB, longest := longestCommonSubstring(a, b)
	if longest == 0 {
		return 0
	}

	sum := longest
	if posA > 0 && posB > 0 {
		sum += similarChars(a[:posA], b[:posB])
	}
	if posA+longest < len(a) && posB+longest < len(b) {
		sum += similarChars(a[posA+longest:], b[posB+longest:])
	}
	return sum
}

// longestCommonSubstring finds the first maximal common run, scanning a
// then b, and keeps the earliest one on ties.
func longestCommonSubstring(a, b []rune) (posA, posB, longest int) {
	for i := range a {
		for j := range b {
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > longest {
				posA, posB, longest = i, j, k
			}
		}
	}
	return posA, posB, longest
}
