package exception

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// justificationCleaner normalizes free text to NFC and strips control runes.
// Newlines and tabs survive since justifications are often pasted from
// tickets.
var justificationCleaner = transform.Chain(
	norm.NFC,
	runes.Remove(runes.Predicate(func(r rune) bool {
		return unicode.IsControl(r) && r != '\n' && r != '\t'
	})),
)

// NormalizeText cleans user-supplied free text before validation so length
// limits count what is actually stored.
func NormalizeText(s string) string {
	out, _, err := transform.String(justificationCleaner, s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(out)
}
