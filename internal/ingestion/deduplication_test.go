package ingestion

import (
	"math"
	"testing"
	"time"

	"github.com/STRATINT/eventcatalog/internal/localtime"
)

func strPtr(s string) *string { return &s }

func TestFingerprint_Deterministic(t *testing.T) {
	start := time.Date(2026, 3, 15, 10, 0, 0, 0, localtime.Zone())

	a := Fingerprint("Puppet Show", start, strPtr("Theatre"))
	b := Fingerprint("Puppet Show", start, strPtr("Theatre"))
	if a != b {
		t.Fatalf("fingerprint not deterministic: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestFingerprint_CaseAndWhitespaceInsensitive(t *testing.T) {
	start := time.Date(2026, 3, 15, 10, 0, 0, 0, localtime.Zone())

	a := Fingerprint("Puppet Show", start, strPtr("Theatre"))
	b := Fingerprint("PUPPET SHOW", start, strPtr(" Theatre "))
	if a != b {
		t.Fatal("expected case and surrounding whitespace to be ignored")
	}
}

func TestFingerprint_Variants(t *testing.T) {
	start := time.Date(2026, 3, 15, 10, 0, 0, 0, localtime.Zone())
	base := Fingerprint("Pohádka", start, strPtr("Divadlo"))

	tests := []struct {
		name  string
		fp    string
		equal bool
	}{
		{"same instant in UTC", Fingerprint("Pohádka", start.UTC(), strPtr("Divadlo")), true},
		{"seconds ignored", Fingerprint("Pohádka", start.Add(30*time.Second), strPtr("Divadlo")), true},
		{"decomposed diacritics", Fingerprint("Poha\u0301dka", start, strPtr("Divadlo")), true},
		{"different minute", Fingerprint("Pohádka", start.Add(time.Minute), strPtr("Divadlo")), false},
		{"missing venue", Fingerprint("Pohádka", start, nil), false},
		{"different title", Fingerprint("Pohádky", start, strPtr("Divadlo")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fp == base; got != tt.equal {
				t.Errorf("equal = %t, want %t", got, tt.equal)
			}
		})
	}

	if Fingerprint("X", start, nil) != Fingerprint("X", start, strPtr("")) {
		t.Error("nil venue and empty venue should hash the same")
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Puppet Show for Kids in Ostrava! ", "puppet show for kids in ostrava"},
		{"Divadlo-loutek, Ostrava", "divadlo loutek ostrava"},
		{"Koncert   (pro děti)", "koncert pro děti"},
		{"!!!", ""},
	}

	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSimilarText(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"hello", "hello", 100},
		{"", "", 0},
		{"abc", "", 0},
		{"world", "word", 88.888888},
		{"abcdef", "abxdef", 83.333333},
		{"ab", "ba", 50},
	}

	for _, tt := range tests {
		got := SimilarText(tt.a, tt.b)
		if math.Abs(got-tt.want) > 0.001 {
			t.Errorf("SimilarText(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarText_CountsRunesNotBytes(t *testing.T) {
	got := SimilarText("děti", "deti")
	// 3 of 4 runes match on each side.
	if math.Abs(got-75) > 0.001 {
		t.Fatalf("SimilarText = %f, want 75", got)
	}
}
