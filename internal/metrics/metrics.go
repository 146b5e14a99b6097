// Package metrics provides lightweight, lock-minimal performance counters
// for the redaction engine and the proxy that fronts it.
//
// Counters use sync/atomic so hot paths (Redact calls) incur no mutex
// contention. The end-to-end pipeline latency statistics sit behind a
// single mutex and are updated once per successful request.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/karim-bhalwani/context-aware-redactor/internal/spans"
)

// knownEntityTypes pre-populates the per-type redaction counter map so
// Snapshot can iterate a fixed set without racing on map writes.
var knownEntityTypes = []spans.EntityType{
	spans.PatientName, spans.Phone, spans.Email, spans.Address, spans.PostalCode,
	spans.DOB, spans.Province, spans.MRN, spans.CreditCard, spans.BankAccount,
	spans.BankName, spans.TransactionID,
	spans.ONHCN, spans.BCPHN, spans.QCRamq, spans.ABPHN, spans.SKHSN, spans.MBPHIN,
	spans.NSHCN, spans.NBMedicare, spans.NLMcp, spans.PEHealth, spans.NTHSN,
	spans.NUHealth, spans.YTYhcip,
}

// Metrics holds all runtime counters for a running redactor instance.
// The zero value is NOT valid for the per-type redaction counters — use
// New().
type Metrics struct {
	RequestsTotal     atomic.Int64
	RequestsSucceeded atomic.Int64
	RequestsFailed    atomic.Int64

	ErrorsInvalidInput    atomic.Int64
	ErrorsConfig          atomic.Int64
	ErrorsNlpUnavailable  atomic.Int64
	ErrorsInternal        atomic.Int64
	RecognizerFaults      atomic.Int64

	SpansRedacted atomic.Int64

	// redactionsByType is written only in New(); concurrent reads are
	// safe without a lock.
	redactionsByType map[spans.EntityType]*atomic.Int64

	pipelineMu sync.Mutex
	pipeline   latencyStats // end-to-end Redact duration

	startTime time.Time
}

// New returns a new Metrics with the start time recorded and per-entity
// redaction counters pre-populated for every closed PHI entity type.
func New() *Metrics {
	m := &Metrics{
		startTime:        time.Now(),
		redactionsByType: make(map[spans.EntityType]*atomic.Int64, len(knownEntityTypes)),
	}
	for _, t := range knownEntityTypes {
		m.redactionsByType[t] = new(atomic.Int64)
	}
	return m
}

// RecordResult updates the request/span/type counters from one Redact
// outcome. It must never be called with the redacted text itself.
func (m *Metrics) RecordResult(accepted []spans.Span, d time.Duration) {
	m.RequestsTotal.Add(1)
	m.RequestsSucceeded.Add(1)
	m.SpansRedacted.Add(int64(len(accepted)))
	for _, s := range accepted {
		if c, ok := m.redactionsByType[s.EntityType]; ok {
			c.Add(1)
		}
	}
	m.pipelineMu.Lock()
	m.pipeline.record(float64(d.Microseconds()) / 1000.0)
	m.pipelineMu.Unlock()
}

// RecordFailure increments the request and error-kind counters for a
// failed Redact call.
func (m *Metrics) RecordFailure(kind string) {
	m.RequestsTotal.Add(1)
	m.RequestsFailed.Add(1)
	switch kind {
	case "InvalidInput":
		m.ErrorsInvalidInput.Add(1)
	case "ConfigError":
		m.ErrorsConfig.Add(1)
	case "NlpUnavailable":
		m.ErrorsNlpUnavailable.Add(1)
	default:
		m.ErrorsInternal.Add(1)
	}
}

// RecordRecognizerFault increments the recognizer-fault counter
// (spec.md §7's RecognizerFault: a single recognizer failed and was
// skipped, the request still completed).
func (m *Metrics) RecordRecognizerFault() {
	m.RecognizerFaults.Add(1)
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON
// encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.pipelineMu.Lock()
	pipeline := m.pipeline.snapshot()
	m.pipelineMu.Unlock()

	byType := make(map[string]int64, len(m.redactionsByType))
	for t, c := range m.redactionsByType {
		if n := c.Load(); n > 0 {
			byType[string(t)] = n
		}
	}

	return Snapshot{
		Requests: RequestSnapshot{
			Total:     m.RequestsTotal.Load(),
			Succeeded: m.RequestsSucceeded.Load(),
			Failed:    m.RequestsFailed.Load(),
		},
		Errors: ErrorSnapshot{
			InvalidInput:   m.ErrorsInvalidInput.Load(),
			Config:         m.ErrorsConfig.Load(),
			NlpUnavailable: m.ErrorsNlpUnavailable.Load(),
			Internal:       m.ErrorsInternal.Load(),
		},
		RecognizerFaults: m.RecognizerFaults.Load(),
		SpansRedacted:    m.SpansRedacted.Load(),
		RedactionsByType: byType,
		PipelineMs:       pipeline,
		UptimeSecs:       time.Since(m.startTime).Seconds(),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Requests         RequestSnapshot  `json:"requests"`
	Errors           ErrorSnapshot    `json:"errors"`
	RecognizerFaults int64            `json:"recognizerFaults"`
	SpansRedacted    int64            `json:"spansRedacted"`
	RedactionsByType map[string]int64 `json:"redactionsByType,omitempty"`
	PipelineMs       LatencySnapshot  `json:"pipelineMs"`
	UptimeSecs       float64          `json:"uptimeSecs"`
}

// RequestSnapshot holds request-level counters.
type RequestSnapshot struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// ErrorSnapshot holds error-kind counters (spec.md §7's closed hierarchy,
// minus RecognizerFault which is tracked separately since it never fails
// the request).
type ErrorSnapshot struct {
	InvalidInput   int64 `json:"invalidInput"`
	Config         int64 `json:"config"`
	NlpUnavailable int64 `json:"nlpUnavailable"`
	Internal       int64 `json:"internal"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}
