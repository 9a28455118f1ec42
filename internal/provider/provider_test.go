package provider

import (
	"testing"

	"github.com/allaspectsdev/provswitch/internal/bridge"
)

func TestParseApp(t *testing.T) {
	for _, a := range Apps {
		got, err := ParseApp(string(a))
		if err != nil {
			t.Fatalf("ParseApp(%q): %v", a, err)
		}
		if got != a {
			t.Errorf("ParseApp: got %q, want %q", got, a)
		}
	}
	if _, err := ParseApp("cursor"); err == nil {
		t.Error("expected error for unknown app")
	}
}

func TestFormatFor(t *testing.T) {
	cases := map[App]bridge.Format{
		AppClaude: bridge.FormatJSONEnv,
		AppCodex:  bridge.FormatTOMLFragment,
		AppGemini: bridge.FormatDotenv,
	}
	for app, want := range cases {
		if got := FormatFor(app); got != want {
			t.Errorf("FormatFor(%s): got %q, want %q", app, got, want)
		}
	}
}

func TestProviderFields(t *testing.T) {
	p := &Provider{
		App:    AppGemini,
		Format: bridge.FormatDotenv,
		Blob:   "GEMINI_API_KEY=k\nGOOGLE_GEMINI_BASE_URL=https://g.example/\n",
	}
	f, err := p.Fields()
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	if f.APIKey != "k" || f.BaseURL != "https://g.example" {
		t.Errorf("Fields: got %+v", f)
	}

	bad := &Provider{Format: "xml"}
	if _, err := bad.Fields(); err == nil {
		t.Error("expected error for unknown format")
	}
}
