package clients

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var phonePattern = regexp.MustCompile(`^[0-9]{3}-[0-9]{3}-[0-9]{4}$`)

// FormatName drops everything but letters, digits and spaces, collapses runs
// of whitespace and title-cases every word.
func FormatName(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, raw)
	words := strings.Fields(cleaned)
	return cases.Title(language.Spanish).String(strings.Join(words, " "))
}

// ValidPhone reports whether phone has the 000-000-0000 shape.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}
