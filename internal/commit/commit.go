// Package commit computes and applies the difference between the custom
// endpoints persisted for a provider and the draft edited in a session.
package commit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/provswitch/internal/endpoint"
	"github.com/allaspectsdev/provswitch/internal/provider"
)

// Plan is the delta between the initial and draft endpoint sets.
type Plan struct {
	ToAdd    []string `json:"to_add"`
	ToRemove []string `json:"to_remove"`
	// ExplicitClear is set when a non-empty set was emptied, as opposed to a
	// set that was never touched.
	ExplicitClear bool `json:"explicit_clear"`
}

// Empty reports whether applying p would change nothing.
func (p Plan) Empty() bool {
	return len(p.ToAdd) == 0 && len(p.ToRemove) == 0 && !p.ExplicitClear
}

// Diff compares the normalized initial and current URL sets. Outputs are
// sorted. Empty or duplicate entries are ignored.
func Diff(initial, current []string) Plan {
	in := normalizedSet(initial)
	cur := normalizedSet(current)

	p := Plan{ToAdd: []string{}, ToRemove: []string{}}
	for u := range cur {
		if !in[u] {
			p.ToAdd = append(p.ToAdd, u)
		}
	}
	for u := range in {
		if !cur[u] {
			p.ToRemove = append(p.ToRemove, u)
		}
	}
	sort.Strings(p.ToAdd)
	sort.Strings(p.ToRemove)
	p.ExplicitClear = len(in) > 0 && len(cur) == 0
	return p
}

func normalizedSet(urls []string) map[string]bool {
	m := make(map[string]bool, len(urls))
	for _, u := range urls {
		if n := endpoint.Normalize(u); n != "" {
			m[n] = true
		}
	}
	return m
}

// URLs returns the URLs of eps.
func URLs(eps []endpoint.CustomEndpoint) []string {
	out := make([]string, len(eps))
	for i, e := range eps {
		out[i] = e.URL
	}
	return out
}

// Entries builds the records to insert for p.ToAdd. A URL that matches an
// initial record after normalization keeps that record's AddedAt and
// LastUsed; others are stamped with now.
func Entries(p Plan, initial []endpoint.CustomEndpoint, now time.Time) []endpoint.CustomEndpoint {
	prev := make(map[string]endpoint.CustomEndpoint, len(initial))
	for _, e := range initial {
		prev[endpoint.Normalize(e.URL)] = e
	}
	out := make([]endpoint.CustomEndpoint, 0, len(p.ToAdd))
	for _, u := range p.ToAdd {
		if e, ok := prev[u]; ok {
			out = append(out, endpoint.CustomEndpoint{URL: u, AddedAt: e.AddedAt, LastUsed: e.LastUsed})
			continue
		}
		out = append(out, endpoint.CustomEndpoint{URL: u, AddedAt: now})
	}
	return out
}

// Applier persists a plan atomically: either every change lands or none do.
type Applier interface {
	ApplyEndpointDiff(ctx context.Context, providerID string, remove []string, add []endpoint.CustomEndpoint, clearAll bool) error
}

// Store is the persistence surface for custom endpoints.
type Store interface {
	Applier
	ListEndpoints(ctx context.Context, providerID string) ([]endpoint.CustomEndpoint, error)
	AddEndpoint(ctx context.Context, providerID string, e endpoint.CustomEndpoint) error
	RemoveEndpoint(ctx context.Context, providerID, url string) error
}

// PersistenceError reports a failed commit. Nothing from the plan or change
// was persisted.
type PersistenceError struct {
	ProviderID string
	Plan       Plan
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("commit: persisting endpoints for provider %s: %v", e.ProviderID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Apply persists p through a. An empty plan is a no-op.
func Apply(ctx context.Context, a Applier, providerID string, p Plan, entries []endpoint.CustomEndpoint) error {
	if p.Empty() {
		return nil
	}
	if err := a.ApplyEndpointDiff(ctx, providerID, p.ToRemove, entries, p.ExplicitClear); err != nil {
		return &PersistenceError{ProviderID: providerID, Plan: p, Err: err}
	}
	log.Info().
		Str("provider", providerID).
		Int("added", len(p.ToAdd)).
		Int("removed", len(p.ToRemove)).
		Bool("clear", p.ExplicitClear).
		Msg("custom endpoints committed")
	return nil
}

// Change is everything one session commit persists: the provider row when
// it is new, the endpoint plan and the blob. A Committer applies it in one
// transaction.
type Change struct {
	// Create inserts Provider first; the store assigns its ID.
	Create   bool
	Provider *provider.Provider
	Plan     Plan
	Entries  []endpoint.CustomEndpoint
	// Blob replaces the stored blob of an existing provider when non-nil.
	Blob *string
}

// Empty reports whether c would change nothing.
func (c Change) Empty() bool {
	return !c.Create && c.Plan.Empty() && c.Blob == nil
}

// Committer persists a Change atomically: either every part lands or none
// does.
type Committer interface {
	CommitChange(ctx context.Context, c Change) error
}

// Commit persists c through cm. An empty change is a no-op.
func Commit(ctx context.Context, cm Committer, c Change) error {
	if c.Empty() {
		return nil
	}
	if err := cm.CommitChange(ctx, c); err != nil {
		return &PersistenceError{ProviderID: c.Provider.ID, Plan: c.Plan, Err: err}
	}
	log.Info().
		Str("provider", c.Provider.ID).
		Bool("created", c.Create).
		Int("added", len(c.Plan.ToAdd)).
		Int("removed", len(c.Plan.ToRemove)).
		Bool("clear", c.Plan.ExplicitClear).
		Bool("blob", c.Blob != nil).
		Msg("session change committed")
	return nil
}
