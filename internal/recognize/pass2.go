package recognize

import (
	"regexp"
	"sort"

	"github.com/karim-bhalwani/context-aware-redactor/internal/annotate"
	"github.com/karim-bhalwani/context-aware-redactor/internal/catalog"
	"github.com/karim-bhalwani/context-aware-redactor/internal/namecache"
	"github.com/karim-bhalwani/context-aware-redactor/internal/nlpengine"
	"github.com/karim-bhalwani/context-aware-redactor/internal/spans"
)

// Pass2 runs the document-local dictionary recognizer over the Name
// Cache populated from pass 1. It is a no-op when the cache was never
// initialized (spec.md §4.6). Every candidate, in either tier, that
// falls inside a provider-tagged PERSON entity's exclusion zone is
// discarded: a surname shared between a provider and a patient mention
// must never cause the provider's own mention to be redacted (mirrors
// the original engine's exclusion-zone merge ahead of anonymization).
func Pass2(text string, doc annotate.Document, cache *namecache.Cache, cat *catalog.Catalog, onFault FaultHandler) []spans.Span {
	if !cache.Initialized() {
		return nil
	}
	runes := []rune(text)
	zones := providerZones(doc)

	var out []spans.Span
	out = append(out, runRecognizer("pass2-tier-a", onFault, func() []spans.Span {
		return excludeZones(tierAFullNameMatches(text, cache.FullNames()), zones)
	})...)
	out = append(out, runRecognizer("pass2-tier-b", onFault, func() []spans.Span {
		return excludeZones(tierBNamePartMatches(text, runes, cache.Parts(), cat), zones)
	})...)
	return out
}

// providerZones returns the character ranges of every provider-tagged
// PERSON entity.
func providerZones(doc annotate.Document) []spans.Span {
	var zones []spans.Span
	for _, e := range doc.NLP.Entities {
		if e.Label == nlpengine.EntityPerson && doc.EntityHasProvider(e) {
			zones = append(zones, spans.Span{Start: e.Start, End: e.End})
		}
	}
	return zones
}

func excludeZones(candidates, zones []spans.Span) []spans.Span {
	if len(zones) == 0 {
		return candidates
	}
	var out []spans.Span
	for _, c := range candidates {
		excluded := false
		for _, z := range zones {
			if c.Overlaps(z) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, c)
		}
	}
	return out
}

// tierAFullNameMatches finds every case-insensitive, word-boundary-aware
// occurrence of each full name, scoring 0.95.
func tierAFullNameMatches(text string, fullNames []string) []spans.Span {
	sort.Strings(fullNames) // deterministic iteration order
	var out []spans.Span
	for _, name := range fullNames {
		if name == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
		for _, m := range re.FindAllStringIndex(text, -1) {
			start, end := byteRangeToRune(text, m[0], m[1])
			out = append(out, spans.Span{
				Start: start, End: end, EntityType: spans.PatientName,
				Score: 0.95, RuleName: "Pass2TierA", Pass: spans.Pass2,
			})
		}
	}
	return out
}

// tierBNamePartMatches compiles one alternation over every name part,
// sorted by descending length to avoid prefix-shadowing, and discards
// any match whose 15-character lookbehind window contains a healthcare
// title (the provider safety check).
func tierBNamePartMatches(text string, runes []rune, parts []string, cat *catalog.Catalog) []spans.Span {
	if len(parts) == 0 {
		return nil
	}
	sort.Slice(parts, func(i, j int) bool {
		if len(parts[i]) != len(parts[j]) {
			return len(parts[i]) > len(parts[j])
		}
		return parts[i] < parts[j]
	})

	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	pattern := `(?i)\b(?:`
	for i, q := range quoted {
		if i > 0 {
			pattern += "|"
		}
		pattern += q
	}
	pattern += `)\b`
	re := regexp.MustCompile(pattern)

	var out []spans.Span
	for _, m := range re.FindAllStringIndex(text, -1) {
		start, end := byteRangeToRune(text, m[0], m[1])
		window := lookbehind(runes, start, 15)
		if titleInWindow(window, cat) {
			continue // discarded by the provider safety check
		}
		out = append(out, spans.Span{
			Start: start, End: end, EntityType: spans.PatientName,
			Score: 0.85, RuleName: "Pass2TierB", Pass: spans.Pass2,
		})
	}
	return out
}

func titleInWindow(window string, cat *catalog.Catalog) bool {
	for _, word := range splitWords(window) {
		if cat.IsHealthcareTitle(word) {
			return true
		}
	}
	return false
}

// splitWords lower-cases and splits window on non-letter runes, used to
// test titles as whole words.
func splitWords(window string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = nil
		}
	}
	for _, r := range window {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			cur = append(cur, r)
		} else {
			flush()
		}
	}
	flush()
	return words
}
