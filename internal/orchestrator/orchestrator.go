// Package orchestrator drives the full per-request pipeline (spec.md
// §4.9): annotate, pass 1, cache population, pass 2, merge, anonymize,
// assemble. It owns the Name Cache for exactly one request and never
// lets it escape.
package orchestrator

import (
	"context"

	"github.com/karim-bhalwani/context-aware-redactor/internal/annotate"
	"github.com/karim-bhalwani/context-aware-redactor/internal/anonymize"
	"github.com/karim-bhalwani/context-aware-redactor/internal/catalog"
	"github.com/karim-bhalwani/context-aware-redactor/internal/merge"
	"github.com/karim-bhalwani/context-aware-redactor/internal/namecache"
	"github.com/karim-bhalwani/context-aware-redactor/internal/nlpengine"
	"github.com/karim-bhalwani/context-aware-redactor/internal/recognize"
	"github.com/karim-bhalwani/context-aware-redactor/internal/rerrors"
	"github.com/karim-bhalwani/context-aware-redactor/internal/spans"
)

// Result is the pipeline's output for one request: the original and
// redacted text, the accepted spans that drove the substitution, and
// summary metadata.
type Result struct {
	Original string
	Redacted string
	Spans    []spans.Span
	Metadata Metadata
}

// Metadata summarizes a Result without repeating the redacted text.
type Metadata struct {
	Count      int
	Types      []string
	EngineName string
}

// FaultReporter is notified whenever a recognizer faults and is skipped.
// Implementations must not block or panic; it is called synchronously
// from within Redact.
type FaultReporter func(recognizerName string, err error)

// Orchestrator wires together the NLP facility and the pattern catalog
// and drives one request at a time through the full pipeline. An
// Orchestrator holds no per-request state between calls: every field is
// fixed at construction and shared, read-only, across concurrent calls.
type Orchestrator struct {
	facility            nlpengine.Facility
	catalog             *catalog.Catalog
	engineName          string
	onFault             FaultReporter
	confidenceThreshold float64
	extraEntityTypes    map[spans.EntityType]bool
}

// New builds an Orchestrator bound to a facility and a catalog. Both are
// expected to be long-lived and shared across every call.
//
// confidenceThreshold is forwarded to merge.FilterByConfidence before
// anonymization (<=0 disables it). extraEntityTypes opts the pipeline
// into the non-PHI passthrough entity set from SPEC_FULL.md §13.2; only
// spans.Person is recognized there today, so every other entry is
// currently a no-op.
func New(facility nlpengine.Facility, cat *catalog.Catalog, engineName string, onFault FaultReporter, confidenceThreshold float64, extraEntityTypes []spans.EntityType) *Orchestrator {
	extra := make(map[spans.EntityType]bool, len(extraEntityTypes))
	for _, t := range extraEntityTypes {
		extra[t] = true
	}
	return &Orchestrator{
		facility:            facility,
		catalog:             cat,
		engineName:          engineName,
		onFault:             onFault,
		confidenceThreshold: confidenceThreshold,
		extraEntityTypes:    extra,
	}
}

// Redact runs the nine-step pipeline over text and returns the result.
// Each step either completes in full or fails the whole request with a
// classified error (spec.md §7); no partial result is ever returned. A
// cancelled ctx causes Redact to abandon work at the next recognizer
// boundary and discard the Name Cache, returning ctx.Err() wrapped as
// InternalError without mutating any process-wide state.
func (o *Orchestrator) Redact(ctx context.Context, text string) (Result, error) {
	if text == "" {
		return Result{}, rerrors.New(rerrors.KindInvalidInput, "text must be non-empty")
	}

	// (1) allocate a fresh Name Cache, owned exclusively by this call.
	cache := namecache.New()

	if err := checkCancelled(ctx); err != nil {
		return Result{}, err
	}

	// (2) annotate.
	doc, err := annotate.Annotate(o.facility, text, o.catalog)
	if err != nil {
		// NlpUnavailable is fatal only at startup (spec.md §7); a
		// per-request failure of the facility is an InternalError.
		return Result{}, rerrors.Wrap(rerrors.KindInternalError, "nlp facility failed", err)
	}

	if err := checkCancelled(ctx); err != nil {
		return Result{}, err
	}

	// (3) pass 1.
	pass1 := recognize.Pass1(text, doc, o.catalog, recognizerFault(o.onFault))
	if o.extraEntityTypes[spans.Person] {
		pass1 = append(pass1, recognize.PassthroughPersons(doc, recognizerFault(o.onFault))...)
	}

	// (4) populate the cache from pass-1 PATIENT_NAME spans.
	runes := []rune(text)
	for _, s := range pass1 {
		if s.EntityType == spans.PatientName {
			cache.Add(s.Text(runes), o.catalog)
		}
	}

	if err := checkCancelled(ctx); err != nil {
		return Result{}, err
	}

	// (5) pass 2.
	pass2 := recognize.Pass2(text, doc, cache, o.catalog, recognizerFault(o.onFault))

	// (6) merge.
	accepted := merge.Merge(pass1, pass2)
	accepted = merge.FilterByConfidence(accepted, o.confidenceThreshold)

	if err := checkCancelled(ctx); err != nil {
		return Result{}, err
	}

	// (7) anonymize.
	redacted := anonymize.Anonymize(text, accepted)

	// (8) assemble result. (9) the cache goes out of scope here and is
	// never referenced again; nothing it held escapes this call.
	return Result{
		Original: text,
		Redacted: redacted,
		Spans:    accepted,
		Metadata: Metadata{
			Count:      len(accepted),
			Types:      typesOf(accepted),
			EngineName: o.engineName,
		},
	}, nil
}

func checkCancelled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return rerrors.Wrap(rerrors.KindInternalError, "redaction cancelled", ctx.Err())
	default:
		return nil
	}
}

func recognizerFault(report FaultReporter) recognize.FaultHandler {
	if report == nil {
		return nil
	}
	return func(name string, err error) { report(name, err) }
}

func typesOf(accepted []spans.Span) []string {
	seen := make(map[spans.EntityType]bool)
	var out []string
	for _, s := range accepted {
		if !seen[s.EntityType] {
			seen[s.EntityType] = true
			out = append(out, string(s.EntityType))
		}
	}
	return out
}
