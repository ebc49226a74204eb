package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// StrictPolicy removes all HTML tags and attributes.
var StrictPolicy = bluemonday.StrictPolicy()

// PlainText strips HTML tags from source text and returns it unescaped, so
// that apostrophes and ampersands in names survive ("Thieves' Cant").
func PlainText(input string) string {
	if !strings.ContainsAny(input, "<>&") {
		return input
	}
	return html.UnescapeString(StrictPolicy.Sanitize(input))
}
