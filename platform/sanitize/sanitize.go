// Package sanitize cleans operator-entered free text before it is stored and
// later rendered into reports and notification mail.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)

	entities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&", "&quot;", "\"", "&#39;", "'")
)

// Text strips markup and collapses runs of whitespace to a single space.
// Tags hidden behind entities are stripped after decoding as well.
func Text(s string) string {
	out := tagPattern.ReplaceAllString(s, "")
	out = entities.Replace(out)
	out = tagPattern.ReplaceAllString(out, "")
	return strings.TrimSpace(spacePattern.ReplaceAllString(out, " "))
}
