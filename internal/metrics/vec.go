package metrics

import (
	"sort"
	"strings"
	"sync"
)

// labelKey joins label values into a map key.
func labelKey(values []string) string {
	return strings.Join(values, "\x00")
}

func labelMap(names, values []string) map[string]string {
	m := make(map[string]string, len(names))
	for i, n := range names {
		if i < len(values) {
			m[n] = values[i]
		}
	}
	return m
}

type counterEntry struct {
	labels map[string]string
	value  int64
}

// counterVec is a set of counters partitioned by label values.
type counterVec struct {
	mu     sync.Mutex
	names  []string
	counts map[string]*counterEntry
}

func newCounterVec(names ...string) *counterVec {
	return &counterVec{names: names, counts: make(map[string]*counterEntry)}
}

func (v *counterVec) inc(values ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	k := labelKey(values)
	e, ok := v.counts[k]
	if !ok {
		e = &counterEntry{labels: labelMap(v.names, values)}
		v.counts[k] = e
	}
	e.value++
}

// snapshot returns the entries sorted by label key.
func (v *counterVec) snapshot() []counterEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	keys := make([]string, 0, len(v.counts))
	for k := range v.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]counterEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, *v.counts[k])
	}
	return out
}

type histogram struct {
	labels  map[string]string
	buckets []float64
	counts  []int64
	sum     float64
	count   int64
}

// histogramVec is a set of histograms partitioned by label values.
type histogramVec struct {
	mu      sync.Mutex
	names   []string
	buckets []float64
	hists   map[string]*histogram
}

func newHistogramVec(buckets []float64, names ...string) *histogramVec {
	return &histogramVec{names: names, buckets: buckets, hists: make(map[string]*histogram)}
}

func (v *histogramVec) observe(value float64, labels ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	k := labelKey(labels)
	h, ok := v.hists[k]
	if !ok {
		h = &histogram{
			labels:  labelMap(v.names, labels),
			buckets: v.buckets,
			counts:  make([]int64, len(v.buckets)),
		}
		v.hists[k] = h
	}
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
	h.sum += value
	h.count++
}

// snapshot returns copies of the histograms sorted by label key. Bucket
// counts are per bucket, not cumulative.
func (v *histogramVec) snapshot() []histogram {
	v.mu.Lock()
	defer v.mu.Unlock()
	keys := make([]string, 0, len(v.hists))
	for k := range v.hists {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]histogram, 0, len(keys))
	for _, k := range keys {
		h := *v.hists[k]
		h.counts = append([]int64(nil), h.counts...)
		out = append(out, h)
	}
	return out
}
