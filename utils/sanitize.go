package utils

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Submissions and feedback are plain text; markup is stripped, not rendered.
var sanitizer = bluemonday.StrictPolicy()

// Sanitize strips all HTML from user text to prevent XSS when it is rendered by a client.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}

// NormalizeText trims surrounding whitespace and reports the length in characters.
func NormalizeText(input string) (string, int) {
	s := strings.TrimSpace(input)
	return s, utf8.RuneCountInString(s)
}
