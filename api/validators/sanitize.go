package validators

import (
	"strings"
	"unicode"
)

// SanitizeQuery trims input, drops control characters, collapses runs of
// whitespace and caps the result at maxRunes characters (0 means no cap).
// Truncation counts runes so that accented names are never split.
func SanitizeQuery(input string, maxRunes int) string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})
	cleaned := []rune(strings.Join(fields, " "))
	if maxRunes > 0 && len(cleaned) > maxRunes {
		cleaned = []rune(strings.TrimSpace(string(cleaned[:maxRunes])))
	}
	return string(cleaned)
}
