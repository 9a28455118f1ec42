package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/allaspectsdev/provswitch/internal/bridge"
	"github.com/allaspectsdev/provswitch/internal/commit"
	"github.com/allaspectsdev/provswitch/internal/endpoint"
	"github.com/allaspectsdev/provswitch/internal/provider"
)

func openCoreTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func createProvider(t *testing.T, st *Store, app provider.App, name string) *provider.Provider {
	t.Helper()
	p := &provider.Provider{App: app, Name: name, Blob: `{"env":{}}`}
	if err := st.CreateProvider(context.Background(), p); err != nil {
		t.Fatalf("CreateProvider: %v", err)
	}
	return p
}

func TestOpen_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if st.Path() != path {
		t.Errorf("Path: got %q, want %q", st.Path(), path)
	}
	if st.Writer() == nil || st.Reader() == nil {
		t.Error("nil database handle")
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open with nested dir: %v", err)
	}
	st.Close()
}

func TestWALMode(t *testing.T) {
	st := openCoreTestStore(t)

	var mode string
	if err := st.Writer().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode: got %q, want %q", mode, "wal")
	}
}

func TestMigrations(t *testing.T) {
	st := openCoreTestStore(t)

	version, err := st.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("migration version: got %d, want %d", version, len(migrations))
	}

	// Re-running is a no-op.
	if err := st.Migrate(); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}
}

func TestMigrations_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	createProvider(t, st, provider.AppClaude, "kept")
	st.Close()

	st, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	ps, err := st.ListProviders(context.Background(), "")
	if err != nil {
		t.Fatalf("ListProviders: %v", err)
	}
	if len(ps) != 1 || ps[0].Name != "kept" {
		t.Errorf("providers after reopen: %+v", ps)
	}
}

func TestProviders_CRUD(t *testing.T) {
	st := openCoreTestStore(t)
	ctx := context.Background()

	p := createProvider(t, st, provider.AppCodex, "work")
	if p.ID == "" {
		t.Fatal("CreateProvider did not assign an ID")
	}
	if p.Format != bridge.FormatTOMLFragment {
		t.Errorf("Format: got %q, want %q", p.Format, bridge.FormatTOMLFragment)
	}

	got, err := st.GetProvider(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProvider: %v", err)
	}
	if got.Name != "work" || got.App != provider.AppCodex || got.Blob != p.Blob {
		t.Errorf("GetProvider: got %+v", got)
	}

	if err := st.UpdateProviderBlob(ctx, p.ID, `{"config":"model = \"x\"\n"}`); err != nil {
		t.Fatalf("UpdateProviderBlob: %v", err)
	}
	got, _ = st.GetProvider(ctx, p.ID)
	if got.Format != bridge.FormatTOMLFragment {
		t.Errorf("format changed by blob update: %q", got.Format)
	}
	if got.Blob != `{"config":"model = \"x\"\n"}` {
		t.Errorf("Blob: got %q", got.Blob)
	}

	byName, err := st.FindProvider(ctx, "work")
	if err != nil || byName.ID != p.ID {
		t.Errorf("FindProvider by name: got %v, %v", byName, err)
	}

	if err := st.DeleteProvider(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProvider: %v", err)
	}
	if _, err := st.GetProvider(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProvider after delete: got %v, want ErrNotFound", err)
	}
	if err := st.DeleteProvider(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestProviders_Validation(t *testing.T) {
	st := openCoreTestStore(t)
	ctx := context.Background()

	if err := st.CreateProvider(ctx, &provider.Provider{App: "vim", Name: "x"}); err == nil {
		t.Error("expected error for unknown app")
	}
	if err := st.CreateProvider(ctx, &provider.Provider{App: provider.AppClaude, Format: "ini"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if err := st.UpdateProviderBlob(ctx, "missing", "{}"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateProviderBlob missing: got %v", err)
	}
}

func TestProviders_ListAndCurrent(t *testing.T) {
	st := openCoreTestStore(t)
	ctx := context.Background()

	a := createProvider(t, st, provider.AppClaude, "a")
	b := createProvider(t, st, provider.AppClaude, "b")
	createProvider(t, st, provider.AppGemini, "g")

	claude, err := st.ListProviders(ctx, provider.AppClaude)
	if err != nil {
		t.Fatalf("ListProviders: %v", err)
	}
	if len(claude) != 2 {
		t.Fatalf("claude providers: got %d, want 2", len(claude))
	}

	if _, err := st.CurrentProvider(ctx, provider.AppClaude); !errors.Is(err, ErrNotFound) {
		t.Errorf("CurrentProvider before switch: got %v", err)
	}
	if err := st.SetCurrentProvider(ctx, a.ID); err != nil {
		t.Fatalf("SetCurrentProvider: %v", err)
	}
	if err := st.SetCurrentProvider(ctx, b.ID); err != nil {
		t.Fatalf("SetCurrentProvider: %v", err)
	}
	cur, err := st.CurrentProvider(ctx, provider.AppClaude)
	if err != nil {
		t.Fatalf("CurrentProvider: %v", err)
	}
	if cur.ID != b.ID || !cur.Current {
		t.Errorf("CurrentProvider: got %+v, want %s", cur, b.ID)
	}
	if ok, _ := st.IsCurrent(ctx, a.ID); ok {
		t.Error("previous provider still current")
	}
}

func TestEndpoints_AddListRemove(t *testing.T) {
	st := openCoreTestStore(t)
	ctx := context.Background()
	p := createProvider(t, st, provider.AppClaude, "p")

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := st.AddEndpoint(ctx, p.ID, endpoint.CustomEndpoint{URL: "https://b.example/", AddedAt: t0.Add(time.Minute)}); err != nil {
		t.Fatalf("AddEndpoint: %v", err)
	}
	if err := st.AddEndpoint(ctx, p.ID, endpoint.CustomEndpoint{URL: "https://a.example", AddedAt: t0}); err != nil {
		t.Fatalf("AddEndpoint: %v", err)
	}
	err := st.AddEndpoint(ctx, p.ID, endpoint.CustomEndpoint{URL: "https://a.example/"})
	if !errors.Is(err, endpoint.ErrDuplicateURL) {
		t.Errorf("duplicate add: got %v, want ErrDuplicateURL", err)
	}
	if err := st.AddEndpoint(ctx, p.ID, endpoint.CustomEndpoint{URL: "file:///etc"}); err == nil {
		t.Error("expected error for invalid URL")
	}

	eps, err := st.ListEndpoints(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListEndpoints: %v", err)
	}
	if len(eps) != 2 || eps[0].URL != "https://a.example" || eps[1].URL != "https://b.example" {
		t.Fatalf("ListEndpoints: got %+v", eps)
	}
	if !eps[0].AddedAt.Equal(t0) || eps[0].LastUsed != nil {
		t.Errorf("metadata: got %+v", eps[0])
	}

	if err := st.RemoveEndpoint(ctx, p.ID, "https://a.example/"); err != nil {
		t.Fatalf("RemoveEndpoint: %v", err)
	}
	if err := st.RemoveEndpoint(ctx, p.ID, "https://a.example"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove: got %v, want ErrNotFound", err)
	}
}

func TestApplyEndpointDiff(t *testing.T) {
	st := openCoreTestStore(t)
	ctx := context.Background()
	p := createProvider(t, st, provider.AppClaude, "p")

	now := time.Now()
	for _, u := range []string{"https://keep.example", "https://old.example"} {
		if err := st.AddEndpoint(ctx, p.ID, endpoint.CustomEndpoint{URL: u, AddedAt: now}); err != nil {
			t.Fatalf("AddEndpoint: %v", err)
		}
	}

	err := st.ApplyEndpointDiff(ctx, p.ID,
		[]string{"https://old.example"},
		[]endpoint.CustomEndpoint{{URL: "https://new.example", AddedAt: now}},
		false,
	)
	if err != nil {
		t.Fatalf("ApplyEndpointDiff: %v", err)
	}
	eps, _ := st.ListEndpoints(ctx, p.ID)
	got := map[string]bool{}
	for _, e := range eps {
		got[e.URL] = true
	}
	if len(got) != 2 || !got["https://keep.example"] || !got["https://new.example"] {
		t.Errorf("after diff: %v", got)
	}

	if err := st.ApplyEndpointDiff(ctx, p.ID, nil, nil, true); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if eps, _ := st.ListEndpoints(ctx, p.ID); len(eps) != 0 {
		t.Errorf("after clear: %+v", eps)
	}
}

func TestApplyEndpointDiff_RollsBack(t *testing.T) {
	st := openCoreTestStore(t)
	ctx := context.Background()
	p := createProvider(t, st, provider.AppClaude, "p")
	if err := st.AddEndpoint(ctx, p.ID, endpoint.CustomEndpoint{URL: "https://keep.example"}); err != nil {
		t.Fatalf("AddEndpoint: %v", err)
	}

	err := st.ApplyEndpointDiff(ctx, p.ID,
		[]string{"https://keep.example"},
		[]endpoint.CustomEndpoint{{URL: "https://ok.example", AddedAt: time.Now()}, {URL: "not a url"}},
		false,
	)
	if err == nil {
		t.Fatal("expected error for invalid entry")
	}
	eps, _ := st.ListEndpoints(ctx, p.ID)
	if len(eps) != 1 || eps[0].URL != "https://keep.example" {
		t.Errorf("partial diff persisted: %+v", eps)
	}

	if err := st.ApplyEndpointDiff(ctx, "missing", nil, nil, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing provider: got %v, want ErrNotFound", err)
	}
}

func TestTouchEndpoint(t *testing.T) {
	st := openCoreTestStore(t)
	ctx := context.Background()
	p := createProvider(t, st, provider.AppClaude, "p")

	added := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	used := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	if err := st.AddEndpoint(ctx, p.ID, endpoint.CustomEndpoint{URL: "https://a.example", AddedAt: added}); err != nil {
		t.Fatalf("AddEndpoint: %v", err)
	}
	if err := st.TouchEndpoint(ctx, p.ID, "https://a.example/", used); err != nil {
		t.Fatalf("TouchEndpoint: %v", err)
	}
	eps, _ := st.ListEndpoints(ctx, p.ID)
	if len(eps) != 1 || !eps[0].AddedAt.Equal(added) || eps[0].LastUsed == nil || !eps[0].LastUsed.Equal(used) {
		t.Errorf("after touch: %+v", eps)
	}
	if err := st.TouchEndpoint(ctx, p.ID, "https://other.example", used); !errors.Is(err, ErrNotFound) {
		t.Errorf("touch missing: got %v, want ErrNotFound", err)
	}
}

func TestDeleteProvider_CascadesEndpoints(t *testing.T) {
	st := openCoreTestStore(t)
	ctx := context.Background()
	p := createProvider(t, st, provider.AppClaude, "p")
	if err := st.AddEndpoint(ctx, p.ID, endpoint.CustomEndpoint{URL: "https://a.example"}); err != nil {
		t.Fatalf("AddEndpoint: %v", err)
	}
	if err := st.DeleteProvider(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProvider: %v", err)
	}
	if eps, _ := st.ListEndpoints(ctx, p.ID); len(eps) != 0 {
		t.Errorf("endpoints survived provider delete: %+v", eps)
	}
}

func TestProbeRounds_AndPrune(t *testing.T) {
	st := openCoreTestStore(t)
	ctx := context.Background()
	p := createProvider(t, st, provider.AppClaude, "p")

	ms := int64(87)
	results := []endpoint.ProbeResult{
		{URL: "https://a.example", LatencyMs: &ms, HTTPStatus: 200},
		{URL: "https://b.example", Error: "HTTP 502", HTTPStatus: 502},
	}
	if _, err := st.InsertProbeRound(ctx, p.ID, results, time.Now().AddDate(0, 0, -60)); err != nil {
		t.Fatalf("InsertProbeRound old: %v", err)
	}
	roundID, err := st.InsertProbeRound(ctx, p.ID, results[:1], time.Now())
	if err != nil {
		t.Fatalf("InsertProbeRound: %v", err)
	}

	recs, err := st.ListProbeResults(ctx, p.ID, 10)
	if err != nil {
		t.Fatalf("ListProbeResults: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records: got %d, want 3", len(recs))
	}
	if recs[0].RoundID != roundID || recs[0].Result.LatencyMs == nil || *recs[0].Result.LatencyMs != 87 {
		t.Errorf("newest record: %+v", recs[0])
	}

	pruned, err := st.Prune(30)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 2 {
		t.Errorf("Prune: got %d rows, want 2", pruned)
	}
	recs, _ = st.ListProbeResults(ctx, p.ID, 10)
	if len(recs) != 1 {
		t.Errorf("after prune: got %d records, want 1", len(recs))
	}
}

func TestProbeHistoryAdapter(t *testing.T) {
	st := openCoreTestStore(t)
	ctx := context.Background()
	p := createProvider(t, st, provider.AppGemini, "p")

	h := NewProbeHistory(st)
	h.RecordRound(ctx, p.ID, []endpoint.ProbeResult{{URL: "https://a.example", Error: "timeout after 8s"}})
	h.RecordRound(ctx, "", []endpoint.ProbeResult{{URL: "https://ignored.example"}})

	recs, err := st.ListProbeResults(ctx, p.ID, 0)
	if err != nil {
		t.Fatalf("ListProbeResults: %v", err)
	}
	if len(recs) != 1 || recs[0].Result.Error != "timeout after 8s" {
		t.Errorf("records: %+v", recs)
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	st := openCoreTestStore(t)
	ctx := context.Background()
	p := createProvider(t, st, provider.AppClaude, "p")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			u := fmt.Sprintf("https://e%d.example", n)
			if err := st.AddEndpoint(ctx, p.ID, endpoint.CustomEndpoint{URL: u}); err != nil {
				t.Errorf("concurrent AddEndpoint %d: %v", n, err)
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = st.ListEndpoints(ctx, p.ID)
		}()
	}
	wg.Wait()

	eps, _ := st.ListEndpoints(ctx, p.ID)
	if len(eps) != 10 {
		t.Errorf("endpoints: got %d, want 10", len(eps))
	}
}

func TestCommitChange_AllSteps(t *testing.T) {
	st := openCoreTestStore(t)
	ctx := context.Background()

	p := &provider.Provider{App: provider.AppClaude, Name: "new", Blob: `{"env":{}}`}
	c := commit.Change{
		Create:   true,
		Provider: p,
		Plan:     commit.Diff(nil, []string{"https://a.example"}),
		Entries:  []endpoint.CustomEndpoint{{URL: "https://a.example", AddedAt: time.Now()}},
	}
	if err := st.CommitChange(ctx, c); err != nil {
		t.Fatalf("CommitChange: %v", err)
	}
	if p.ID == "" {
		t.Fatal("provider ID not assigned")
	}
	if eps, _ := st.ListEndpoints(ctx, p.ID); len(eps) != 1 {
		t.Errorf("endpoints: %+v", eps)
	}

	blob := `{"env":{"ANTHROPIC_BASE_URL":"https://a.example"}}`
	if err := st.CommitChange(ctx, commit.Change{Provider: p, Blob: &blob}); err != nil {
		t.Fatalf("CommitChange blob: %v", err)
	}
	got, _ := st.GetProvider(ctx, p.ID)
	if got.Blob != blob {
		t.Errorf("blob: got %s", got.Blob)
	}
}

func TestCommitChange_CreateRolledBackOnEndpointFailure(t *testing.T) {
	st := openCoreTestStore(t)
	ctx := context.Background()

	p := &provider.Provider{App: provider.AppCodex, Name: "broken"}
	err := st.CommitChange(ctx, commit.Change{
		Create:   true,
		Provider: p,
		Plan:     commit.Plan{ToAdd: []string{"not a url"}},
		Entries:  []endpoint.CustomEndpoint{{URL: "not a url"}},
	})
	if err == nil {
		t.Fatal("expected error for invalid endpoint")
	}
	list, _ := st.ListProviders(ctx, "")
	if len(list) != 0 {
		t.Errorf("provider row survived a failed commit: %+v", list)
	}
}

func TestCommitChange_EndpointsRolledBackOnBlobFailure(t *testing.T) {
	st := openCoreTestStore(t)
	ctx := context.Background()
	p := createProvider(t, st, provider.AppClaude, "p")
	if err := st.AddEndpoint(ctx, p.ID, endpoint.CustomEndpoint{URL: "https://keep.example", AddedAt: time.Now()}); err != nil {
		t.Fatalf("AddEndpoint: %v", err)
	}
	if _, err := st.writer.Exec(`CREATE TRIGGER fail_blob BEFORE UPDATE OF blob ON providers
		BEGIN SELECT RAISE(ABORT, 'disk full'); END;`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	blob := `{"env":{"ANTHROPIC_AUTH_TOKEN":"sk-new"}}`
	err := st.CommitChange(ctx, commit.Change{
		Provider: p,
		Plan:     commit.Diff([]string{"https://keep.example"}, []string{"https://keep.example", "https://new.example"}),
		Entries:  []endpoint.CustomEndpoint{{URL: "https://new.example", AddedAt: time.Now()}},
		Blob:     &blob,
	})
	if err == nil {
		t.Fatal("expected blob update to fail")
	}
	eps, _ := st.ListEndpoints(ctx, p.ID)
	if len(eps) != 1 || eps[0].URL != "https://keep.example" {
		t.Errorf("endpoint diff persisted despite failed blob write: %+v", eps)
	}
	got, _ := st.GetProvider(ctx, p.ID)
	if got.Blob != p.Blob {
		t.Errorf("blob changed: %s", got.Blob)
	}
}
