// Package speedtest measures the latency of candidate endpoints. Every URL is
// probed concurrently under its own timeout and failures are reported as
// data, never as errors.
package speedtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/allaspectsdev/provswitch/internal/endpoint"
	"github.com/allaspectsdev/provswitch/internal/metrics"
	"github.com/allaspectsdev/provswitch/internal/provider"
	"github.com/allaspectsdev/provswitch/internal/tracing"
)

// Engine runs probe rounds. It keeps no per-round state and is safe for
// concurrent use.
type Engine struct {
	transport Transport
	collector *metrics.Collector
	warmup    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithCollector records probe outcomes on c.
func WithCollector(c *metrics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithWarmup sends one untimed request before the timed one so connection
// setup is not counted as latency. Both share the probe timeout.
func WithWarmup(enabled bool) Option {
	return func(e *Engine) { e.warmup = enabled }
}

// New returns an Engine probing through t.
func New(t Transport, opts ...Option) *Engine {
	e := &Engine{transport: t}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Probe tests every URL concurrently and returns one result per input, in
// input order. A non-positive timeout means DefaultTimeout.
func (e *Engine) Probe(ctx context.Context, urls []string, timeout time.Duration) []endpoint.ProbeResult {
	return e.round(ctx, "", urls, timeout)
}

// ProbeFor is Probe with the timeout looked up for app and metrics labeled
// with it.
func (e *Engine) ProbeFor(ctx context.Context, app provider.App, urls []string, timeouts Timeouts) []endpoint.ProbeResult {
	return e.round(ctx, string(app), urls, timeouts.For(app))
}

func (e *Engine) round(ctx context.Context, app string, urls []string, timeout time.Duration) []endpoint.ProbeResult {
	results := make([]endpoint.ProbeResult, len(urls))
	if len(urls) == 0 {
		return results
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, span := tracing.StartProbeRoundSpan(ctx, app, len(urls), timeout)
	defer span.End()
	e.collector.RoundStarted()
	defer e.collector.RoundFinished()

	started := time.Now()
	var g errgroup.Group
	for i, u := range urls {
		g.Go(func() error {
			results[i] = e.probeOne(ctx, app, u, timeout)
			return nil
		})
	}
	_ = g.Wait()

	log.Debug().
		Str("app", app).
		Int("urls", len(urls)).
		Dur("elapsed", time.Since(started)).
		Msg("probe round finished")
	return results
}

type outcome struct {
	status  int
	err     error
	elapsed time.Duration
}

func (e *Engine) probeOne(ctx context.Context, app, raw string, timeout time.Duration) endpoint.ProbeResult {
	res := endpoint.ProbeResult{URL: endpoint.Normalize(raw)}
	if _, err := endpoint.Validate(raw); err != nil {
		res.Error = err.Error()
		e.collector.RecordProbe(app, metrics.OutcomeError, 0)
		return res
	}

	ctx, span := tracing.StartProbeSpan(ctx, res.URL)
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		if e.warmup {
			_, _ = e.transport.Probe(pctx, res.URL)
		}
		start := time.Now()
		status, err := e.transport.Probe(pctx, res.URL)
		done <- outcome{status: status, err: err, elapsed: time.Since(start)}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-pctx.Done():
		// A transport that ignores ctx must not stretch the round.
		out = outcome{err: pctx.Err()}
	}

	label := metrics.OutcomeOK
	switch {
	case out.err != nil && (errors.Is(out.err, context.DeadlineExceeded) || errors.Is(pctx.Err(), context.DeadlineExceeded)):
		res.Error = fmt.Sprintf("timeout after %s", timeout)
		label = metrics.OutcomeTimeout
	case out.err != nil:
		res.Error = out.err.Error()
		label = metrics.OutcomeError
	case out.status >= 500:
		res.HTTPStatus = out.status
		res.Error = fmt.Sprintf("HTTP %d", out.status)
		label = metrics.OutcomeHTTP
	default:
		ms := out.elapsed.Milliseconds()
		res.LatencyMs = &ms
		res.HTTPStatus = out.status
	}

	e.collector.RecordProbe(app, label, out.elapsed)
	tracing.EndProbeSpan(span, res.HTTPStatus, res.LatencyMs, res.Error)
	if res.Error != "" {
		log.Debug().Str("url", res.URL).Str("error", res.Error).Msg("probe failed")
	}
	return res
}
