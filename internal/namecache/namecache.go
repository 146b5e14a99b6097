// Package namecache implements the Name Cache (spec.md §4.5): a
// request-scoped dictionary of patient full names and name-parts,
// populated from pass-1 PATIENT_NAME spans and consulted read-only by
// the pass-2 recognizer.
//
// A Cache must never be shared across requests and never stored in a
// package-level or goroutine-local variable (spec.md §5); callers thread
// it explicitly through the pipeline as a plain parameter, owned for the
// lifetime of one orchestrator invocation.
package namecache

import (
	"strings"
	"unicode"

	"github.com/karim-bhalwani/context-aware-redactor/internal/catalog"
)

// Cache is a fresh, per-request dictionary of patient names. Build one
// with New: the zero value has nil maps, and Add panics on it.
type Cache struct {
	fullNames  map[string]struct{}
	parts      map[string]struct{}
	initialized bool
}

// New allocates an empty Name Cache for one request.
func New() *Cache {
	return &Cache{
		fullNames: make(map[string]struct{}),
		parts:     make(map[string]struct{}),
	}
}

// Initialized reports whether anything has been added yet. Pass-2 is a
// no-op when this is false.
func (c *Cache) Initialized() bool { return c.initialized }

// FullNames returns the casefolded full-name strings added so far.
// Callers must not mutate the returned slice's backing strings; it is a
// fresh copy.
func (c *Cache) FullNames() []string { return keys(c.fullNames) }

// Parts returns the casefolded name-part strings added so far.
func (c *Cache) Parts() []string { return keys(c.parts) }

// Add ingests one pass-1 PATIENT_NAME span's surface text: casefold and
// strip surrounding punctuation, add to full_names, then split on
// whitespace and add each token of length >= 3 that is not a stop word
// to parts. Returns true if anything was added.
func (c *Cache) Add(surface string, cat *catalog.Catalog) bool {
	name := strings.ToLower(strings.TrimFunc(surface, isPunctOrSpace))
	if name == "" {
		return false
	}

	added := false
	if _, exists := c.fullNames[name]; !exists {
		c.fullNames[name] = struct{}{}
		added = true
	}

	for _, tok := range strings.Fields(name) {
		tok = strings.TrimFunc(tok, isPunctOrSpace)
		if len([]rune(tok)) < 3 {
			continue
		}
		if cat.IsStopWord(tok) {
			continue
		}
		if _, exists := c.parts[tok]; !exists {
			c.parts[tok] = struct{}{}
			added = true
		}
	}

	if added {
		c.initialized = true
	}
	return added
}

func isPunctOrSpace(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
