package format

import (
	"regexp"
	"strings"
)

// AllowedTags is the restricted tag set generated copy may contain.
// Anything outside it is not valid Telegram HTML for this bot.
var AllowedTags = []string{"b", "i", "code", "u"}

var (
	allowedTagRe = regexp.MustCompile(`(?i)</?(b|i|code|u)>`)
	anyTagRe     = regexp.MustCompile(`(?i)</?[a-z][a-z0-9]*(\s[^>]*)?>`)
)

// EscapeHTML escapes text for safe embedding inside HTML-parse-mode messages.
func EscapeHTML(text string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(text)
}

// StripTags removes every HTML tag from text, producing the plain-text
// rendition used when Telegram rejects the entity markup.
func StripTags(text string) string {
	plain := anyTagRe.ReplaceAllString(text, "")
	r := strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'")
	return r.Replace(plain)
}

// HasDisallowedTags reports whether text contains tags outside AllowedTags.
func HasDisallowedTags(text string) bool {
	stripped := allowedTagRe.ReplaceAllString(text, "")
	return anyTagRe.MatchString(stripped)
}
