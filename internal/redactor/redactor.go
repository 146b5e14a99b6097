// Package redactor implements the Service Façade (spec.md §4.10): a
// single reentrant operation, Redact, backed by a lazily-initialized
// engine singleton. This is the package external callers (the proxy,
// a CLI, a future HTTP handler) should import; everything else under
// internal/ is plumbing.
package redactor

import (
	"context"
	"os"
	"sync"

	"github.com/karim-bhalwani/context-aware-redactor/internal/catalog"
	"github.com/karim-bhalwani/context-aware-redactor/internal/nlpengine"
	"github.com/karim-bhalwani/context-aware-redactor/internal/orchestrator"
	"github.com/karim-bhalwani/context-aware-redactor/internal/rerrors"
	"github.com/karim-bhalwani/context-aware-redactor/internal/spans"
)

// EngineName identifies this implementation in RedactionResult metadata.
const EngineName = "context-aware-redactor"

// Result mirrors orchestrator.Result; re-exported here so callers of
// this package never need to import internal/orchestrator directly.
type Result = orchestrator.Result

// FaultReporter is re-exported for callers that want recognizer-fault
// visibility (e.g. to feed a metrics counter).
type FaultReporter = orchestrator.FaultReporter

var (
	once    sync.Once
	engine  *orchestrator.Orchestrator
	initErr error

	optionsMu sync.Mutex
	options   startupOptions
)

// startupOptions holds the config.Config fields Configure forwards into
// the engine singleton at construction. Configure must be called, if at
// all, before the first Redact call; engineSingleton reads options
// exactly once, inside once.Do.
type startupOptions struct {
	catalogPath         string
	confidenceThreshold float64
	extraEntityTypes    []spans.EntityType
}

// Configure sets the options engineBuilder uses the first time the
// engine singleton is built. Callers (cmd/redactor/main.go) should call
// this once at startup, before the first Redact call; calling it after
// the singleton has already been built has no effect.
func Configure(catalogPath string, confidenceThreshold float64, extraEntityTypes []string) {
	optionsMu.Lock()
	defer optionsMu.Unlock()
	options = startupOptions{
		catalogPath:         catalogPath,
		confidenceThreshold: confidenceThreshold,
		extraEntityTypes:    toEntityTypes(extraEntityTypes),
	}
}

func toEntityTypes(names []string) []spans.EntityType {
	out := make([]spans.EntityType, len(names))
	for i, n := range names {
		out[i] = spans.EntityType(n)
	}
	return out
}

// loadCatalog loads the pattern catalog at path, or the embedded default
// when path is empty (spec.md §3's declarative YAML, overridable via
// config.Config.PatternCatalogPath).
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.LoadDefault()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rerrors.Wrap(rerrors.KindConfigError, "failed to read pattern catalog file", err)
	}
	return catalog.Load(data)
}

// engineBuilder is swappable in tests; production code never touches it.
var engineBuilder = func() (*orchestrator.Orchestrator, error) {
	optionsMu.Lock()
	opts := options
	optionsMu.Unlock()

	cat, err := loadCatalog(opts.catalogPath)
	if err != nil {
		return nil, err
	}
	facility := nlpengine.NewHeuristicFacility()
	return orchestrator.New(facility, cat, EngineName, nil, opts.confidenceThreshold, opts.extraEntityTypes), nil
}

// engineSingleton lazily constructs the process-wide Orchestrator
// exactly once, mirroring the original's double-checked-locking
// singleton (redaction/service/pipeline.py's RedactionService). A
// construction failure (e.g. a malformed catalog) is cached and
// returned on every subsequent call, since the process cannot recover
// from a ConfigError without a restart.
func engineSingleton() (*orchestrator.Orchestrator, error) {
	once.Do(func() {
		engine, initErr = engineBuilder()
	})
	return engine, initErr
}

// Redact validates text and delegates to the engine singleton. It is
// reentrant: concurrent callers share no mutable state beyond the
// immutable catalog and facility the singleton was built with once.
func Redact(ctx context.Context, text string) (Result, error) {
	if text == "" {
		return Result{}, rerrors.New(rerrors.KindInvalidInput, "text must be non-empty")
	}
	eng, err := engineSingleton()
	if err != nil {
		return Result{}, err
	}
	return eng.Redact(ctx, text)
}

// New builds an independent façade bound to a caller-supplied facility
// and catalog, bypassing the process-wide singleton. Use this for tests
// or when multiple catalogs must coexist in one process; Redact (the
// package-level function) is the right choice for normal use.
func New(facility nlpengine.Facility, cat *catalog.Catalog, onFault FaultReporter) *orchestrator.Orchestrator {
	return orchestrator.New(facility, cat, EngineName, onFault, 0, nil)
}
