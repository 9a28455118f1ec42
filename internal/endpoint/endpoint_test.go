package endpoint

import (
	"errors"
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://a.example", "https://a.example"},
		{"https://a.example/", "https://a.example"},
		{"  https://a.example///  ", "https://a.example"},
		{"https://a.example/v1/", "https://a.example/v1"},
		{"", ""},
		{"   ", ""},
		{"///", ""},
	}
	for _, tt := range tests {
		got := Normalize(tt.in)
		if got != tt.want {
			t.Errorf("Normalize(%q): got %q, want %q", tt.in, got, tt.want)
		}
		if again := Normalize(got); again != got {
			t.Errorf("Normalize not idempotent for %q: %q then %q", tt.in, got, again)
		}
	}
}

func TestValidate(t *testing.T) {
	if _, err := Validate("   "); !errors.Is(err, ErrEmptyURL) {
		t.Errorf("whitespace: got %v, want ErrEmptyURL", err)
	}

	bad := []string{"ftp://a.example", "a.example", "/relative/path", "http://", "javascript:alert(1)", "/"}
	for _, raw := range bad {
		_, err := Validate(raw)
		var inv *InvalidURLError
		if !errors.As(err, &inv) {
			t.Errorf("Validate(%q): got %v, want *InvalidURLError", raw, err)
		}
		if !IsInvalid(err) {
			t.Errorf("IsInvalid(%v) = false", err)
		}
	}

	good := []string{"http://localhost:8080", "https://api.example.com/v1/", "HTTPS://Upper.example"}
	for _, raw := range good {
		if _, err := Validate(raw); err != nil {
			t.Errorf("Validate(%q): unexpected error %v", raw, err)
		}
	}
}

func TestCollect_Dedup(t *testing.T) {
	got := Collect(nil, nil, "", []string{"https://a.example/", "https://a.example"})
	if len(got) != 1 {
		t.Fatalf("len: got %d, want 1", len(got))
	}
	if got[0].URL != "https://a.example" {
		t.Errorf("URL: got %q, want %q", got[0].URL, "https://a.example")
	}
}

func TestCollect_PriorityAndSelected(t *testing.T) {
	persisted := []CustomEndpoint{{URL: "https://p.example/", AddedAt: time.Now()}}
	presets := []string{"https://p.example", "https://preset.example"}
	user := []string{"https://preset.example/", "https://user.example"}

	got := Collect(presets, persisted, "https://sel.example/", user)

	want := []struct {
		url    string
		origin Origin
	}{
		{"https://p.example", OriginPersisted},
		{"https://preset.example", OriginPreset},
		{"https://user.example", OriginUser},
		{"https://sel.example", OriginSelected},
	}
	if len(got) != len(want) {
		t.Fatalf("len: got %d, want %d (%+v)", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].URL != w.url || got[i].Origin != w.origin {
			t.Errorf("[%d]: got %s/%s, want %s/%s", i, got[i].URL, got[i].Origin, w.url, w.origin)
		}
		if got[i].ID == "" {
			t.Errorf("[%d]: empty ID", i)
		}
	}
}

func TestCollect_SelectedAlreadyPresent(t *testing.T) {
	got := Collect([]string{"https://a.example"}, nil, "https://a.example/", nil)
	if len(got) != 1 || got[0].Origin != OriginPreset {
		t.Fatalf("got %+v, want one preset candidate", got)
	}
}

func TestCollect_SkipsInvalid(t *testing.T) {
	got := Collect([]string{"", "ftp://x.example", "https://ok.example"}, nil, "", nil)
	if len(got) != 1 || got[0].URL != "https://ok.example" {
		t.Fatalf("got %+v", got)
	}
}

func TestCollect_NeverDuplicates(t *testing.T) {
	inputs := []string{
		"https://a.example", "https://a.example/", " https://a.example// ",
		"https://b.example", "https://b.example/", "http://b.example",
	}
	got := Collect(inputs, []CustomEndpoint{{URL: "https://b.example//"}}, "https://a.example", inputs)
	seen := map[string]bool{}
	for _, c := range got {
		if seen[c.URL] {
			t.Fatalf("duplicate canonical URL %q in %+v", c.URL, got)
		}
		seen[c.URL] = true
	}
	if len(got) != 3 {
		t.Errorf("len: got %d, want 3", len(got))
	}
}

func TestSet_AddErrors(t *testing.T) {
	s := NewSet()
	if _, err := s.Add("https://a.example/", OriginUser); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add("https://a.example", OriginUser); !errors.Is(err, ErrDuplicateURL) {
		t.Errorf("duplicate: got %v, want ErrDuplicateURL", err)
	}
	if _, err := s.Add("ftp://a.example", OriginUser); !IsInvalid(err) {
		t.Errorf("invalid: got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len: got %d, want 1", s.Len())
	}
}

func TestSet_MergeKeepsResults(t *testing.T) {
	s := NewSetFrom(Collect([]string{"https://a.example", "https://b.example"}, nil, "", nil))
	before, _ := s.Get("https://a.example")

	ms := int64(42)
	s.ApplyResults([]ProbeResult{{URL: "https://a.example/", LatencyMs: &ms, HTTPStatus: 200}})

	s.Merge(Collect([]string{"https://a.example", "https://c.example"}, nil, "", nil))

	a, ok := s.Get("https://a.example")
	if !ok {
		t.Fatal("a dropped by merge")
	}
	if a.ID != before.ID {
		t.Errorf("ID changed: %q -> %q", before.ID, a.ID)
	}
	if a.Result == nil || a.Result.LatencyMs == nil || *a.Result.LatencyMs != 42 {
		t.Errorf("latency lost: %+v", a.Result)
	}
	if s.Has("https://b.example") {
		t.Error("b should have been dropped")
	}
	if got := s.URLs(); len(got) != 2 || got[1] != "https://c.example" {
		t.Errorf("URLs: got %v", got)
	}
}

func TestSet_ResetAndRemove(t *testing.T) {
	s := NewSet()
	s.Add("https://a.example", OriginUser)
	s.Add("https://b.example", OriginPreset)

	ms := int64(10)
	s.ApplyResults([]ProbeResult{{URL: "https://a.example", LatencyMs: &ms}})
	s.ResetResults()

	a, _ := s.Get("https://a.example")
	if a.Result == nil || a.Result.LatencyMs != nil || a.Result.Error != "" {
		t.Errorf("expected pending result, got %+v", a.Result)
	}

	if got := s.CustomURLs(); len(got) != 1 || got[0] != "https://a.example" {
		t.Errorf("CustomURLs: got %v", got)
	}
	if !s.Remove("https://a.example/") {
		t.Error("Remove returned false")
	}
	if s.Remove("https://a.example") {
		t.Error("second Remove returned true")
	}
	if s.Len() != 1 {
		t.Errorf("Len: got %d, want 1", s.Len())
	}
}

func TestSet_SnapshotIsolation(t *testing.T) {
	s := NewSet()
	s.Add("https://a.example", OriginUser)
	ms := int64(5)
	s.ApplyResults([]ProbeResult{{URL: "https://a.example", LatencyMs: &ms}})

	snap := s.Candidates()
	*snap[0].Result.LatencyMs = 999

	a, _ := s.Get("https://a.example")
	if *a.Result.LatencyMs != 5 {
		t.Errorf("snapshot mutation leaked into set: %d", *a.Result.LatencyMs)
	}
}
