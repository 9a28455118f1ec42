package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// PrometheusHandler returns an http.HandlerFunc that writes metrics in
// Prometheus text exposition format (version 0.0.4). Metrics are formatted
// manually; the Prometheus client library is not required.
func PrometheusHandler(collector *Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		WritePrometheus(w, collector)
	}
}

// WritePrometheus writes every metric of collector to w.
func WritePrometheus(w io.Writer, collector *Collector) {
	stats := collector.Stats()

	writeMetric(w, "provswitch_probe_rounds_total",
		"Total number of speed-test rounds started.",
		"counter", stats.ProbeRounds)

	writeMetric(w, "provswitch_probe_rounds_active",
		"Number of speed-test rounds currently running.",
		"gauge", stats.ActiveRounds)

	writeMetric(w, "provswitch_auto_selections_total",
		"Total number of base URL changes made by auto-selection.",
		"counter", stats.AutoSelections)

	writeMetric(w, "provswitch_sessions_open",
		"Number of open edit sessions.",
		"gauge", stats.OpenSessions)

	writeMetric(w, "provswitch_self_writes_suppressed_total",
		"Config change notifications ignored as echoes of a session's own write.",
		"counter", stats.SuppressedWrites)

	if collector == nil {
		return
	}

	writeMetricFloat(w, "provswitch_uptime_seconds",
		"Number of seconds since the service started.",
		"gauge", time.Since(collector.startTime).Seconds())

	writeCounterVec(w, "provswitch_probes_total",
		"Total number of endpoint probes by app and outcome.",
		collector.probes)

	writeHistogramVec(w, "provswitch_probe_latency_seconds",
		"Latency of successful endpoint probes in seconds.",
		collector.probeLatency)

	writeCounterVec(w, "provswitch_commits_total",
		"Total number of session commits by result.",
		collector.commits)
}

func writeMetric(w io.Writer, name, help, metricType string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(w, "%s %d\n", name, value)
}

func writeMetricFloat(w io.Writer, name, help, metricType string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(w, "%s %g\n", name, value)
}

// formatLabels formats a label map as a Prometheus label string, e.g.
// {app="claude",outcome="ok"}. extra pairs are appended after the sorted labels.
func formatLabels(labels map[string]string, extra ...string) string {
	if len(labels) == 0 && len(extra) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+len(extra)/2)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	for i := 0; i+1 < len(extra); i += 2 {
		parts = append(parts, fmt.Sprintf("%s=%q", extra[i], extra[i+1]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func writeCounterVec(w io.Writer, name, help string, cv *counterVec) {
	entries := cv.snapshot()
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	for _, e := range entries {
		fmt.Fprintf(w, "%s%s %d\n", name, formatLabels(e.labels), e.value)
	}
}

func writeHistogramVec(w io.Writer, name, help string, hv *histogramVec) {
	histograms := hv.snapshot()
	if len(histograms) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s histogram\n", name)
	for _, h := range histograms {
		var cumulative int64
		for i, bound := range h.buckets {
			cumulative += h.counts[i]
			fmt.Fprintf(w, "%s_bucket%s %d\n", name, formatLabels(h.labels, "le", fmt.Sprintf("%g", bound)), cumulative)
		}
		fmt.Fprintf(w, "%s_bucket%s %d\n", name, formatLabels(h.labels, "le", "+Inf"), h.count)
		fmt.Fprintf(w, "%s_sum%s %g\n", name, formatLabels(h.labels), h.sum)
		fmt.Fprintf(w, "%s_count%s %d\n", name, formatLabels(h.labels), h.count)
	}
}
