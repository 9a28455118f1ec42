package commit

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/allaspectsdev/provswitch/internal/endpoint"
	"github.com/allaspectsdev/provswitch/internal/provider"
)

func TestDiff_Equal(t *testing.T) {
	sets := [][]string{
		nil,
		{"https://a.example"},
		{"https://a.example", "https://b.example"},
	}
	for _, s := range sets {
		p := Diff(s, s)
		if !p.Empty() {
			t.Errorf("Diff(%v, %v): got %+v, want empty", s, s, p)
		}
		if p.ExplicitClear {
			t.Errorf("Diff(%v, %v): unexpected ExplicitClear", s, s)
		}
	}
}

func TestDiff_NormalizesBeforeComparing(t *testing.T) {
	p := Diff([]string{"https://a.example/"}, []string{" https://a.example"})
	if !p.Empty() {
		t.Errorf("expected empty plan, got %+v", p)
	}
}

func TestDiff_AddRemove(t *testing.T) {
	p := Diff(
		[]string{"https://keep.example", "https://old.example"},
		[]string{"https://keep.example", "https://new2.example", "https://new1.example"},
	)
	if want := []string{"https://new1.example", "https://new2.example"}; !reflect.DeepEqual(p.ToAdd, want) {
		t.Errorf("ToAdd: got %v, want %v", p.ToAdd, want)
	}
	if want := []string{"https://old.example"}; !reflect.DeepEqual(p.ToRemove, want) {
		t.Errorf("ToRemove: got %v, want %v", p.ToRemove, want)
	}
	if p.ExplicitClear {
		t.Error("unexpected ExplicitClear")
	}
}

func TestDiff_ExplicitClear(t *testing.T) {
	p := Diff([]string{"https://a.example", "https://b.example"}, nil)
	if !p.ExplicitClear {
		t.Error("expected ExplicitClear when a non-empty set is emptied")
	}
	if len(p.ToRemove) != 2 {
		t.Errorf("ToRemove: got %v", p.ToRemove)
	}

	p = Diff(nil, nil)
	if p.ExplicitClear || !p.Empty() {
		t.Errorf("untouched empty set: got %+v", p)
	}
}

func TestDiff_NewProvider(t *testing.T) {
	p := Diff(nil, []string{"https://a.example"})
	if !reflect.DeepEqual(p.ToAdd, []string{"https://a.example"}) || len(p.ToRemove) != 0 {
		t.Errorf("got %+v", p)
	}
}

func TestEntries_ReusesMetadata(t *testing.T) {
	added := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	used := added.Add(time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	initial := []endpoint.CustomEndpoint{{URL: "https://a.example/", AddedAt: added, LastUsed: &used}}
	p := Plan{ToAdd: []string{"https://a.example", "https://b.example"}}

	got := Entries(p, initial, now)
	if len(got) != 2 {
		t.Fatalf("entries: got %d, want 2", len(got))
	}
	if !got[0].AddedAt.Equal(added) || got[0].LastUsed == nil || !got[0].LastUsed.Equal(used) {
		t.Errorf("existing URL lost metadata: %+v", got[0])
	}
	if got[0].URL != "https://a.example" {
		t.Errorf("URL: got %q", got[0].URL)
	}
	if !got[1].AddedAt.Equal(now) || got[1].LastUsed != nil {
		t.Errorf("new URL: got %+v", got[1])
	}
}

type fakeApplier struct {
	calls    int
	remove   []string
	add      []endpoint.CustomEndpoint
	clearAll bool
	err      error
}

func (f *fakeApplier) ApplyEndpointDiff(_ context.Context, _ string, remove []string, add []endpoint.CustomEndpoint, clearAll bool) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.remove, f.add, f.clearAll = remove, add, clearAll
	return nil
}

func TestApply(t *testing.T) {
	a := &fakeApplier{}
	if err := Apply(context.Background(), a, "p1", Plan{}, nil); err != nil {
		t.Fatalf("Apply empty: %v", err)
	}
	if a.calls != 0 {
		t.Errorf("empty plan reached the store")
	}

	p := Diff([]string{"https://a.example"}, nil)
	if err := Apply(context.Background(), a, "p1", p, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !a.clearAll || !reflect.DeepEqual(a.remove, []string{"https://a.example"}) {
		t.Errorf("applier got remove=%v clear=%v", a.remove, a.clearAll)
	}
}

func TestApply_PersistenceError(t *testing.T) {
	base := errors.New("disk full")
	a := &fakeApplier{err: base}
	p := Diff(nil, []string{"https://a.example"})

	err := Apply(context.Background(), a, "p1", p, Entries(p, nil, time.Now()))
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PersistenceError, got %v", err)
	}
	if pe.ProviderID != "p1" || !errors.Is(err, base) {
		t.Errorf("PersistenceError: got %+v", pe)
	}
}

type fakeCommitter struct {
	calls []Change
	err   error
}

func (f *fakeCommitter) CommitChange(_ context.Context, c Change) error {
	f.calls = append(f.calls, c)
	return f.err
}

func TestCommit(t *testing.T) {
	fc := &fakeCommitter{}
	p := &provider.Provider{ID: "p1"}

	if err := Commit(context.Background(), fc, Change{Provider: p, Plan: Diff(nil, nil)}); err != nil {
		t.Fatalf("empty Commit: %v", err)
	}
	if len(fc.calls) != 0 {
		t.Errorf("empty change reached the store: %+v", fc.calls)
	}

	blob := "{}"
	if err := Commit(context.Background(), fc, Change{Provider: p, Blob: &blob}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(fc.calls) != 1 || *fc.calls[0].Blob != "{}" {
		t.Errorf("calls: %+v", fc.calls)
	}

	fc.err = errors.New("disk full")
	err := Commit(context.Background(), fc, Change{Create: true, Provider: p})
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.ProviderID != "p1" || !errors.Is(err, fc.err) {
		t.Errorf("Commit failure: got %v", err)
	}
}
