// Package recognize implements the pass-1 and pass-2 recognizers
// (spec.md §4.4, §4.6): the set of independent rule evaluators whose
// union forms each pass's candidate span set. No recognizer reaches into
// another's state; every recognizer here is a pure function of the
// annotated document, the pattern catalog, and (for pass 2) the Name
// Cache.
package recognize

import (
	"regexp"
	"unicode/utf8"

	"github.com/karim-bhalwani/context-aware-redactor/internal/spans"
)

// nonNameEntityTypes lists every pattern-driven entity type other than
// PATIENT_NAME, which has its own dedicated stage-1/2/3 recognizers.
var nonNameEntityTypes = append([]spans.EntityType{
	spans.Phone, spans.Email, spans.Address, spans.PostalCode, spans.DOB,
	spans.Province, spans.MRN, spans.CreditCard, spans.BankAccount,
	spans.BankName, spans.TransactionID,
}, spans.AllProvincialHealthNumbers...)

// provinceCode maps a provincial health-number entity type to the
// two-letter province code its validator is registered under.
var provinceCode = map[spans.EntityType]string{
	spans.ONHCN: "ON", spans.BCPHN: "BC", spans.QCRamq: "QC",
	spans.ABPHN: "AB", spans.SKHSN: "SK", spans.MBPHIN: "MB",
	spans.NSHCN: "NS", spans.NBMedicare: "NB", spans.NLMcp: "NL",
	spans.PEHealth: "PE", spans.NTHSN: "NT", spans.NUHealth: "NU",
	spans.YTYhcip: "YT",
}

// byteRangeToRune converts a [start,end) byte range of text into the
// equivalent rune range, since spans.Span offsets are rune-based
// throughout the pipeline (matching nlpengine's tokenizer).
func byteRangeToRune(text string, byteStart, byteEnd int) (int, int) {
	return utf8.RuneCountInString(text[:byteStart]), utf8.RuneCountInString(text[:byteEnd])
}

// wholeWordCasefold reports whether word appears as a whole word inside
// window, case-insensitively. window and word are assumed already
// casefolded where the caller wants case-insensitivity; this also
// accepts mixed case windows since it lower-cases internally.
func wholeWordCasefold(window, word string) bool {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(window)
}

// lookbehind returns the up-to-n-character window immediately before
// position start in runes, clamped at text start.
func lookbehind(runes []rune, start, n int) string {
	from := start - n
	if from < 0 {
		from = 0
	}
	if start < 0 || start > len(runes) {
		return ""
	}
	return string(runes[from:start])
}
