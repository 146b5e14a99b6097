// Package anonymize implements the final substitution walk (spec.md
// §4.8): copying original text into an output buffer and replacing each
// accepted span with its entity type's literal placeholder.
package anonymize

import (
	"strings"

	"github.com/karim-bhalwani/context-aware-redactor/internal/catalog"
	"github.com/karim-bhalwani/context-aware-redactor/internal/spans"
)

// Anonymize walks accepted, non-overlapping, start-ascending spans
// left to right and substitutes each with its placeholder. Substitution
// is length-changing: the returned string's offsets do not correspond
// to the input's. accepted must already be merged (merge.Merge).
func Anonymize(text string, accepted []spans.Span) string {
	runes := []rune(text)
	var out strings.Builder
	cursor := 0
	for _, s := range accepted {
		if s.Start < cursor || s.End > len(runes) || s.Start >= s.End {
			continue // defensive: merge.Merge should never hand us this
		}
		out.WriteString(string(runes[cursor:s.Start]))
		out.WriteString(catalog.Placeholder(s.EntityType))
		cursor = s.End
	}
	if cursor < len(runes) {
		out.WriteString(string(runes[cursor:]))
	}
	return out.String()
}
