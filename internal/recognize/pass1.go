package recognize

import (
	"github.com/karim-bhalwani/context-aware-redactor/internal/annotate"
	"github.com/karim-bhalwani/context-aware-redactor/internal/catalog"
	"github.com/karim-bhalwani/context-aware-redactor/internal/nlpengine"
	"github.com/karim-bhalwani/context-aware-redactor/internal/rerrors"
	"github.com/karim-bhalwani/context-aware-redactor/internal/spans"
	"github.com/karim-bhalwani/context-aware-redactor/internal/validators"
)

// FaultHandler receives a recognizer's name and the panic/error it
// raised. The orchestrator wires this to its logger; recognize itself
// has no logging dependency.
type FaultHandler func(recognizerName string, err error)

// Pass1 runs every pass-1 recognizer and returns the union of their
// spans. A recognizer that panics is isolated: its panic is recovered,
// reported to onFault as a RecognizerFault, and the recognizer is
// skipped, so one bad rule can never fail the whole request (spec.md
// §7's per-recognizer fault isolation).
func Pass1(text string, doc annotate.Document, cat *catalog.Catalog, onFault FaultHandler) []spans.Span {
	runes := []rune(text)

	var out []spans.Span
	out = append(out, runRecognizer("pattern", onFault, func() []spans.Span {
		return patternSpans(text, cat)
	})...)
	out = append(out, runRecognizer("patient-name-pattern", onFault, func() []spans.Span {
		return patientNamePatternSpans(text, cat)
	})...)
	out = append(out, runRecognizer("patient-role", onFault, func() []spans.Span {
		return patientRoleSpans(doc)
	})...)
	out = append(out, runRecognizer("patient-context", onFault, func() []spans.Span {
		return patientContextSpans(doc, runes, cat)
	})...)
	return out
}

// runRecognizer invokes fn, converting a panic into a RecognizerFault
// reported via onFault; the recognizer's contribution becomes empty on
// fault rather than aborting the request.
func runRecognizer(name string, onFault FaultHandler, fn func() []spans.Span) (result []spans.Span) {
	defer func() {
		if r := recover(); r != nil {
			if onFault != nil {
				onFault(name, rerrors.New(rerrors.KindRecognizerFault, "recognizer panicked"))
			}
			result = nil
		}
	}()
	return fn()
}

// patternSpans evaluates every configured regex alternative for every
// non-PATIENT_NAME entity type, applying the credit-card and
// provincial-health-number validators to candidate matches.
func patternSpans(text string, cat *catalog.Catalog) []spans.Span {
	var out []spans.Span
	for _, entity := range nonNameEntityTypes {
		for _, cp := range cat.CompiledPatterns(entity) {
			for _, m := range cp.Regex().FindAllStringIndex(text, -1) {
				surface := text[m[0]:m[1]]
				if !validateCandidate(entity, surface) {
					continue
				}
				start, end := byteRangeToRune(text, m[0], m[1])
				out = append(out, spans.Span{
					Start: start, End: end, EntityType: entity,
					Score: cp.Score(), RuleName: cp.Name(), Pass: spans.Pass1,
				})
			}
		}
	}
	return out
}

func validateCandidate(entity spans.EntityType, surface string) bool {
	if entity == spans.CreditCard {
		return validators.CreditCard(surface)
	}
	if code, ok := provinceCode[entity]; ok {
		if v, ok := validators.ForProvince(code); ok {
			return v.Validate(surface)
		}
	}
	return true
}

// patientNamePatternSpans implements the stage-1 recognizer: explicit
// "Patient Name:"/"Pt Name:" labels, emitting PATIENT_NAME over the
// captured name.
func patientNamePatternSpans(text string, cat *catalog.Catalog) []spans.Span {
	var out []spans.Span
	for _, cp := range cat.CompiledPatterns(spans.PatientName) {
		for _, m := range cp.Regex().FindAllStringSubmatchIndex(text, -1) {
			if len(m) < 4 || m[2] < 0 || m[3] < 0 {
				continue
			}
			start, end := byteRangeToRune(text, m[2], m[3])
			out = append(out, spans.Span{
				Start: start, End: end, EntityType: spans.PatientName,
				Score: cp.Score(), RuleName: cp.Name(), Pass: spans.Pass1,
			})
		}
	}
	return out
}

// PassthroughPersons implements the opt-in generic-PERSON passthrough
// (SPEC_FULL.md §13.2): every PERSON entity that is neither
// provider-tagged nor tagged role=PATIENT becomes a PERSON span (an
// entity that only the pattern or context recognizers matched gets one
// too, and merge keeps the higher-scoring PATIENT_NAME span over it), so
// an operator who enables it gets incidental names (witnesses, family members, staff
// mentioned in passing) anonymized too instead of left in the clear.
// Callers gate this on the ExtraEntityTypes config knob; it is never run
// by default.
func PassthroughPersons(doc annotate.Document, onFault FaultHandler) []spans.Span {
	return runRecognizer("passthrough-person", onFault, func() []spans.Span {
		var out []spans.Span
		for _, e := range doc.NLP.Entities {
			if e.Label != nlpengine.EntityPerson {
				continue
			}
			if doc.EntityHasProvider(e) || doc.EntityHasPatientRole(e) {
				continue
			}
			out = append(out, spans.Span{
				Start: e.Start, End: e.End, EntityType: spans.Person,
				Score: 0.60, RuleName: "PassthroughPerson", Pass: spans.Pass1,
			})
		}
		return out
	})
}

// patientRoleSpans implements stage 2: every PERSON entity with
// role=PATIENT and no provider-tagged token becomes a PATIENT_NAME span.
func patientRoleSpans(doc annotate.Document) []spans.Span {
	var out []spans.Span
	for _, e := range doc.NLP.Entities {
		if e.Label != nlpengine.EntityPerson {
			continue
		}
		if doc.EntityHasProvider(e) || !doc.EntityHasPatientRole(e) {
			continue
		}
		out = append(out, spans.Span{
			Start: e.Start, End: e.End, EntityType: spans.PatientName,
			Score: 0.85, RuleName: "PatientRole", Pass: spans.Pass1,
		})
	}
	return out
}

// patientContextSpans implements stage 3: every PERSON entity with no
// provider-tagged token whose 30-character lookbehind window contains a
// context keyword becomes a PATIENT_NAME span.
func patientContextSpans(doc annotate.Document, runes []rune, cat *catalog.Catalog) []spans.Span {
	var out []spans.Span
	keywords := cat.Vocabulary().PatientContextKeywords
	for _, e := range doc.NLP.Entities {
		if e.Label != nlpengine.EntityPerson {
			continue
		}
		if doc.EntityHasProvider(e) {
			continue
		}
		window := lookbehind(runes, e.Start, 30)
		for _, kw := range keywords {
			if wholeWordCasefold(window, kw) {
				out = append(out, spans.Span{
					Start: e.Start, End: e.End, EntityType: spans.PatientName,
					Score: 0.90, RuleName: "PatientContext", Pass: spans.Pass1,
				})
				break
			}
		}
	}
	return out
}
