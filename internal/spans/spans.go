// Package spans defines the entity-type enum and the Span value that
// flows through the recognition, merge, and anonymization stages.
package spans

import "fmt"

// EntityType is the closed set of entities the engine can detect.
type EntityType string

// The closed entity-type enum. Every value's placeholder is "<VALUE>",
// built by catalog.Placeholder.
const (
	PatientName   EntityType = "PATIENT_NAME"
	Phone         EntityType = "PHONE"
	Email         EntityType = "EMAIL"
	Address       EntityType = "ADDRESS"
	PostalCode    EntityType = "POSTAL_CODE"
	DOB           EntityType = "DOB"
	Province      EntityType = "PROVINCE"
	MRN           EntityType = "MEDICAL_RECORD_NUMBER"
	CreditCard    EntityType = "CREDIT_CARD"
	BankAccount   EntityType = "BANK_ACCOUNT"
	BankName      EntityType = "BANK_NAME"
	TransactionID EntityType = "TRANSACTION_ID"

	ONHCN    EntityType = "ON_HCN"
	BCPHN    EntityType = "BC_PHN"
	QCRamq   EntityType = "QC_RAMQ"
	ABPHN    EntityType = "AB_PHN"
	SKHSN    EntityType = "SK_HSN"
	MBPHIN   EntityType = "MB_PHIN"
	NSHCN    EntityType = "NS_HCN"
	NBMedicare EntityType = "NB_MEDICARE"
	NLMcp    EntityType = "NL_MCP"
	PEHealth EntityType = "PE_HEALTH"
	NTHSN    EntityType = "NT_HSN"
	NUHealth EntityType = "NU_HEALTH"
	YTYhcip  EntityType = "YT_YHCIP"

	// Person is an opt-in extension type (see SPEC_FULL.md §13.2): a
	// PERSON entity the NLP facility found that pass1/pass2 did not
	// already claim as PATIENT_NAME. Not part of the closed PHI enum but
	// shares the same placeholder mechanism.
	Person EntityType = "PERSON"
)

// AllProvincialHealthNumbers lists the per-province health-number entity
// types in the order spec.md's glossary enumerates them.
var AllProvincialHealthNumbers = []EntityType{
	ONHCN, BCPHN, QCRamq, ABPHN, SKHSN, MBPHIN,
	NSHCN, NBMedicare, NLMcp, PEHealth, NTHSN, NUHealth, YTYhcip,
}

// Pass identifies which recognition pass produced a Span. Pass 1 always
// outranks Pass 2 on overlap (spec.md §4.7).
type Pass int

const (
	Pass1 Pass = 1
	Pass2 Pass = 2
)

// Span is a half-open character range over the request's text, tagged
// with the entity type, confidence score, and the rule that found it.
//
// Invariant: 0 <= Start < End <= len(text in runes); Score is monotone
// within a single RuleName (higher means a stronger match).
type Span struct {
	Start      int
	End        int
	EntityType EntityType
	Score      float64
	RuleName   string
	Pass       Pass
}

// Len returns the span's length in runes.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether two spans intersect on at least one character.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Text returns the span's substring of a rune slice, previously decoded
// from the original text.
func (s Span) Text(runes []rune) string {
	if s.Start < 0 || s.End > len(runes) || s.Start >= s.End {
		return ""
	}
	return string(runes[s.Start:s.End])
}

func (s Span) String() string {
	return fmt.Sprintf("%s[%d:%d]@%.2f(%s)", s.EntityType, s.Start, s.End, s.Score, s.RuleName)
}
