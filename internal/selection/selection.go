// Package selection orders probe results and picks the endpoint to use.
package selection

import (
	"sort"

	"github.com/allaspectsdev/provswitch/internal/endpoint"
)

// Rank returns a copy of results ordered fastest first. Results without a
// latency sort after all results with one, and ties break on URL so the
// order is total and deterministic.
func Rank(results []endpoint.ProbeResult) []endpoint.ProbeResult {
	out := make([]endpoint.ProbeResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	return out
}

func less(a, b endpoint.ProbeResult) bool {
	switch {
	case a.LatencyMs != nil && b.LatencyMs == nil:
		return true
	case a.LatencyMs == nil && b.LatencyMs != nil:
		return false
	case a.LatencyMs != nil && *a.LatencyMs != *b.LatencyMs:
		return *a.LatencyMs < *b.LatencyMs
	}
	return a.URL < b.URL
}

// AutoSelect returns the fastest successful URL of ranked and true when
// auto-selection is enabled and that URL differs from current. ranked must
// come from Rank.
func AutoSelect(ranked []endpoint.ProbeResult, current string, enabled bool) (string, bool) {
	if !enabled || len(ranked) == 0 || !ranked[0].OK() {
		return "", false
	}
	best := endpoint.Normalize(ranked[0].URL)
	if best == endpoint.Normalize(current) {
		return "", false
	}
	return best, true
}
