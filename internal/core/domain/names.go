package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldName normalizes a place name for comparison: accents removed,
// lowercased and trimmed. "São Paulo" and "sao paulo " fold to the same value.
func FoldName(s string) string {
	s, _, _ = transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		strings.TrimSpace(strings.ToLower(s)),
	)
	return s
}

// SameRegion reports whether a and b name the same city of the same state.
func SameRegion(a, b Region) bool {
	return strings.EqualFold(strings.TrimSpace(a.UF), strings.TrimSpace(b.UF)) &&
		FoldName(a.City) == FoldName(b.City)
}
