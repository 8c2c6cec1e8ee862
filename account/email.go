package account

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CanonicalEmail lower-cases email and strips diacritics, so that
// "José@Exámple.com" and "jose@example.com" address the same account.
//
// Surrounding whitespace is removed. The result is used both as the stored
// value and as the lookup key.
func CanonicalEmail(email string) string {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return ""
	}

	// transform.Chain keeps internal state; build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, trimmed)
	if err != nil {
		stripped = trimmed
	}

	return strings.ToLower(stripped)
}
