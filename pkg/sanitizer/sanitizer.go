// Package sanitizer turns untrusted text into a form that is safe to place in
// HTML output. Markup is removed, readable content is kept, and the characters
// that can open a tag or an attribute value are escaped.
package sanitizer

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var policy = bluemonday.StrictPolicy()

// Sanitize returns text with all markup stripped and < > & " ' escaped.
//
// Entities present in the input are decoded once and re-escaped, so the
// result never carries a bare special character and Sanitize(Sanitize(s))
// equals Sanitize(s).
func Sanitize(text string) string {
	if text == "" {
		return ""
	}

	stripped := policy.Sanitize(norm.NFC.String(text))
	plain := cleanText(html.UnescapeString(stripped))

	return norm.NFC.String(html.EscapeString(strings.TrimSpace(plain)))
}

// cleanText folds line endings to \n and drops control characters other than
// newline and tab.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
