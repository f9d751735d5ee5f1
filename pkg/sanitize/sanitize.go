// Package sanitize strips markup from free-text operator input such as
// deactivation reasons before it is persisted.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text removes every HTML element, decodes entities and collapses runs of
// whitespace. The result is plain text.
func Text(s string) string {
	if s == "" {
		return ""
	}
	cleaned := html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(cleaned), " ")
}

// Limit applies Text and truncates the result to max runes.
func Limit(s string, max int) string {
	out := Text(s)
	if max <= 0 {
		return out
	}
	runes := []rune(out)
	if len(runes) <= max {
		return out
	}
	return strings.TrimSpace(string(runes[:max]))
}
