// Package merge implements the span merger (spec.md §4.7): resolving
// overlapping candidate spans from pass 1 and pass 2 into a
// non-overlapping sequence, ascending by start.
package merge

import (
	"sort"

	"github.com/karim-bhalwani/context-aware-redactor/internal/spans"
)

// Merge combines pass-1 and pass-2 candidate spans into a
// non-overlapping, start-ascending sequence. Overlap is resolved by:
// pass 1 unconditionally beats pass 2; within a pass, higher score wins,
// then larger span, then earliest start, then rule-name lexicographic
// order (spec.md §4.7). The input slices are not mutated.
func Merge(pass1, pass2 []spans.Span) []spans.Span {
	candidates := make([]spans.Span, 0, len(pass1)+len(pass2))
	candidates = append(candidates, pass1...)
	candidates = append(candidates, pass2...)

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Pass != b.Pass {
			return a.Pass < b.Pass // Pass1 (1) before Pass2 (2)
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if la, lb := a.Len(), b.Len(); la != lb {
			return la > lb
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.RuleName < b.RuleName
	})

	var accepted []spans.Span
	for _, c := range candidates {
		conflict := false
		for _, a := range accepted {
			if c.Overlaps(a) {
				conflict = true
				break
			}
		}
		if !conflict {
			accepted = append(accepted, c)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted
}

// FilterByConfidence drops accepted spans scoring below threshold,
// preserving order. A threshold <= 0 is a no-op (config.go's
// ConfidenceThreshold: "0 disables the filter").
func FilterByConfidence(accepted []spans.Span, threshold float64) []spans.Span {
	if threshold <= 0 {
		return accepted
	}
	out := make([]spans.Span, 0, len(accepted))
	for _, s := range accepted {
		if s.Score >= threshold {
			out = append(out, s)
		}
	}
	return out
}
