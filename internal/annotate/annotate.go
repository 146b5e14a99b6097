// Package annotate implements the NLP Annotator (spec.md §4.3): it wraps
// an nlpengine.Facility and adds two read-only, per-token annotations,
// provider? and role?, that every downstream recognizer consults but
// never mutates.
//
// The underlying Facility (nlpengine.Document) has no room for custom
// per-token fields, so the annotations live in a parallel slice indexed
// by token position and travel together with the document as a single
// Document value (spec.md's "parallel array" design note).
package annotate

import (
	"strings"

	"github.com/karim-bhalwani/context-aware-redactor/internal/catalog"
	"github.com/karim-bhalwani/context-aware-redactor/internal/nlpengine"
)

// Document pairs an nlpengine.Document with the provider?/role?
// annotations the Annotator derives from it. Both fields are read-only
// once New returns.
type Document struct {
	NLP         nlpengine.Document
	Provider    []bool // parallel to NLP.Tokens
	PatientRole []bool // parallel to NLP.Tokens
}

// IsPatientRole reports whether token i was tagged PATIENT by the
// dependency-pattern pass.
func (d Document) IsPatientRole(i int) bool {
	return i >= 0 && i < len(d.PatientRole) && d.PatientRole[i]
}

// IsProvider reports whether token i lies inside a provider-tagged
// PERSON entity.
func (d Document) IsProvider(i int) bool {
	return i >= 0 && i < len(d.Provider) && d.Provider[i]
}

// EntityHasProvider reports whether any token of entity e is
// provider-tagged.
func (d Document) EntityHasProvider(e nlpengine.Entity) bool {
	for _, i := range d.NLP.TokensIn(e.Start, e.End) {
		if d.IsProvider(i) {
			return true
		}
	}
	return false
}

// EntityHasPatientRole reports whether any token of entity e carries
// role = PATIENT.
func (d Document) EntityHasPatientRole(e nlpengine.Entity) bool {
	for _, i := range d.NLP.TokensIn(e.Start, e.End) {
		if d.IsPatientRole(i) {
			return true
		}
	}
	return false
}

// Annotate runs the facility over text and derives provider?/role?
// annotations from the resulting document and the pattern catalog's
// vocabulary (spec.md §4.3). The facility call and the annotation pass
// are both pure with respect to the catalog: nothing here retains state
// across calls.
func Annotate(facility nlpengine.Facility, text string, cat *catalog.Catalog) (Document, error) {
	doc, err := facility.Process(text)
	if err != nil {
		return Document{}, err
	}

	d := Document{
		NLP:         doc,
		Provider:    make([]bool, len(doc.Tokens)),
		PatientRole: make([]bool, len(doc.Tokens)),
	}

	tagProviders(&d, cat)
	tagPatientRoles(&d, cat)

	return d, nil
}

// tagProviders implements the provider-tagging rule: for every PERSON
// entity, inspect the token immediately preceding its start; if its
// casefolded, trailing-dot-stripped surface form is a configured
// healthcare title, mark every token of the entity as provider.
func tagProviders(d *Document, cat *catalog.Catalog) {
	for _, e := range d.NLP.Entities {
		if e.Label != nlpengine.EntityPerson {
			continue
		}
		entityToks := d.NLP.TokensIn(e.Start, e.End)
		if len(entityToks) == 0 {
			continue
		}
		precedingIdx := entityToks[0] - 1
		if precedingIdx < 0 {
			continue
		}
		word := strings.ToLower(strings.TrimSuffix(d.NLP.Tokens[precedingIdx].Text, "."))
		if !cat.IsHealthcareTitle(word) {
			continue
		}
		for _, i := range entityToks {
			d.Provider[i] = true
		}
	}
}

// tagPatientRoles implements the two dependency patterns: an active verb
// whose lemma is in patient_verbs_active with an nsubj child, and a
// passive verb whose lemma is in patient_verbs_passive with an nsubjpass
// child. Tokens already marked provider are skipped; otherwise the
// subject token is tagged, and if it lies inside a PERSON entity with no
// provider-tagged token, the whole entity is tagged.
func tagPatientRoles(d *Document, cat *catalog.Catalog) {
	active := toSet(cat.Vocabulary().PatientVerbsActive)
	passive := toSet(cat.Vocabulary().PatientVerbsPassive)

	for i, tok := range d.NLP.Tokens {
		if tok.Dep != nlpengine.DepNsubj && tok.Dep != nlpengine.DepNsubjpass {
			continue
		}
		if tok.Head < 0 || tok.Head >= len(d.NLP.Tokens) {
			continue
		}
		headLemma := d.NLP.Tokens[tok.Head].Lemma

		matches := (tok.Dep == nlpengine.DepNsubj && active[headLemma]) ||
			(tok.Dep == nlpengine.DepNsubjpass && passive[headLemma])
		if !matches {
			continue
		}

		if d.Provider[i] {
			continue
		}
		d.PatientRole[i] = true

		if e, ok := d.NLP.EntityContaining(i); ok && e.Label == nlpengine.EntityPerson {
			if !d.EntityHasProvider(e) {
				for _, j := range d.NLP.TokensIn(e.Start, e.End) {
					d.PatientRole[j] = true
				}
			}
		}
	}
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[strings.ToLower(s)] = true
	}
	return m
}
