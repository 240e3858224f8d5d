package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	htmlPolicy  = bluemonday.UGCPolicy()
	plainPolicy = bluemonday.StrictPolicy()
)

// SanitizeHTML keeps safe formatting markup; used for operator-authored notices.
func SanitizeHTML(input string) string {
	return htmlPolicy.Sanitize(input)
}

// PlainText strips every tag from user input and trims surrounding space.
// The policy escapes what it keeps, so entities are decoded again for storage.
func PlainText(input string) string {
	return strings.TrimSpace(html.UnescapeString(plainPolicy.Sanitize(input)))
}
