package metrics

import (
	"sync/atomic"
	"time"
)

// Probe outcomes used as the "outcome" label.
const (
	OutcomeOK      = "ok"
	OutcomeHTTP    = "http_error"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// latencyBuckets are the probe latency histogram bounds in seconds.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 12}

// Collector tracks live metrics using atomic counters for lock-free,
// concurrent-safe updates. All methods are safe to call on a nil Collector,
// which records nothing.
type Collector struct {
	probeRounds      int64
	activeRounds     int64
	openSessions     int64
	suppressedWrites int64
	autoSelections   int64

	probes       *counterVec
	probeLatency *histogramVec
	commits      *counterVec

	startTime time.Time
}

// Stats is a point-in-time snapshot of the collector's counters.
type Stats struct {
	Uptime           string `json:"uptime"`
	ProbeRounds      int64  `json:"probe_rounds"`
	ActiveRounds     int64  `json:"active_rounds"`
	ProbesOK         int64  `json:"probes_ok"`
	ProbesFailed     int64  `json:"probes_failed"`
	AutoSelections   int64  `json:"auto_selections"`
	OpenSessions     int64  `json:"open_sessions"`
	SuppressedWrites int64  `json:"suppressed_writes"`
	CommitsOK        int64  `json:"commits_ok"`
	CommitsFailed    int64  `json:"commits_failed"`
}

// NewCollector creates a Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{
		probes:       newCounterVec("app", "outcome"),
		probeLatency: newHistogramVec(latencyBuckets, "app"),
		commits:      newCounterVec("result"),
		startTime:    time.Now(),
	}
}

// RoundStarted marks the beginning of a probe round.
func (c *Collector) RoundStarted() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.probeRounds, 1)
	atomic.AddInt64(&c.activeRounds, 1)
}

// RoundFinished marks the end of a probe round.
func (c *Collector) RoundFinished() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.activeRounds, -1)
}

// RecordProbe counts one probe outcome. Latency is observed for successful
// probes only.
func (c *Collector) RecordProbe(app, outcome string, latency time.Duration) {
	if c == nil {
		return
	}
	c.probes.inc(app, outcome)
	if outcome == OutcomeOK {
		c.probeLatency.observe(latency.Seconds(), app)
	}
}

// RecordAutoSelect counts a base URL change made by auto-selection.
func (c *Collector) RecordAutoSelect() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.autoSelections, 1)
}

// RecordCommit counts a session commit.
func (c *Collector) RecordCommit(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.commits.inc("ok")
	} else {
		c.commits.inc("error")
	}
}

// SessionOpened increments the open session gauge.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.openSessions, 1)
}

// SessionClosed decrements the open session gauge.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.openSessions, -1)
}

// SelfWriteSuppressed counts a config notification ignored because it
// echoed the session's own write.
func (c *Collector) SelfWriteSuppressed() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.suppressedWrites, 1)
}

// Stats returns a point-in-time snapshot of all metrics.
func (c *Collector) Stats() *Stats {
	if c == nil {
		return &Stats{}
	}
	var ok, failed int64
	for _, e := range c.probes.snapshot() {
		if e.labels["outcome"] == OutcomeOK {
			ok += e.value
		} else {
			failed += e.value
		}
	}
	var commitsOK, commitsFailed int64
	for _, e := range c.commits.snapshot() {
		if e.labels["result"] == "ok" {
			commitsOK += e.value
		} else {
			commitsFailed += e.value
		}
	}
	return &Stats{
		Uptime:           formatDuration(time.Since(c.startTime)),
		ProbeRounds:      atomic.LoadInt64(&c.probeRounds),
		ActiveRounds:     atomic.LoadInt64(&c.activeRounds),
		ProbesOK:         ok,
		ProbesFailed:     failed,
		AutoSelections:   atomic.LoadInt64(&c.autoSelections),
		OpenSessions:     atomic.LoadInt64(&c.openSessions),
		SuppressedWrites: atomic.LoadInt64(&c.suppressedWrites),
		CommitsOK:        commitsOK,
		CommitsFailed:    commitsFailed,
	}
}

// formatDuration produces a human-readable duration string like "2d 5h 32m".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	s := ""
	for _, p := range []struct {
		v    int
		unit string
	}{{days, "d"}, {hours, "h"}, {minutes, "m"}} {
		if p.v == 0 {
			continue
		}
		if s != "" {
			s += " "
		}
		s += itoa(p.v) + p.unit
	}
	if s == "" {
		return "0m"
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
