// Package source holds body normalization shared by the mail source
// adapters. Adapters hand the classifier already-sanitized text so the
// classifier itself stays a pure function of its record.
package source

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxBodyLength caps relayed bodies so they fit a chat message.
const MaxBodyLength = 1800

var (
	urlPattern = regexp.MustCompile(`http\S+`)
	tagPattern = regexp.MustCompile(`<[^>]*>`)
)

// SanitizeBody redacts hyperlinks and truncates the body to at most
// MaxBodyLength bytes, backing up so the cut never splits a rune.
func SanitizeBody(body string) string {
	body = urlPattern.ReplaceAllString(body, "<REDACTED URL>")
	if len(body) > MaxBodyLength {
		cut := MaxBodyLength
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	return strings.TrimSpace(body)
}

// StripHTML reduces an HTML part to its text content. Quality is not a
// goal here; relayed notices only need to be readable.
func StripHTML(body string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(body, ""))
}
