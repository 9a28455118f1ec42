package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/allaspectsdev/provswitch/internal/bridge"
	"github.com/allaspectsdev/provswitch/internal/provider"
)

func TestBuiltin(t *testing.T) {
	c, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	for _, app := range provider.Apps {
		if len(c.Templates(app)) == 0 {
			t.Errorf("no built-in templates for %s", app)
		}
	}
	presets := c.Presets("claude-kimi")
	if len(presets) != 2 || presets[0] != "https://api.moonshot.cn/anthropic" {
		t.Errorf("Presets(claude-kimi): got %v", presets)
	}
	if c.Presets("nope") != nil {
		t.Error("unknown template returned presets")
	}
}

func TestLoad_UserFileOverridesAndExtends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	data := `
[[template]]
id = "claude-official"
app = "claude"
name = "Anthropic (proxy)"
endpoints = ["https://proxy.example/", "https://proxy.example", "not a url"]

[[template]]
id = "codex-local"
app = "codex"
name = "Local"
endpoints = ["http://127.0.0.1:8080/v1"]
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tmpl, ok := c.Template("claude-official")
	if !ok || tmpl.Name != "Anthropic (proxy)" {
		t.Fatalf("override: got %+v", tmpl)
	}
	if got := c.Presets("claude-official"); len(got) != 1 || got[0] != "https://proxy.example" {
		t.Errorf("cleaned presets: got %v", got)
	}
	codex := c.Templates(provider.AppCodex)
	if codex[len(codex)-1].ID != "codex-local" {
		t.Errorf("user template not appended: %+v", codex)
	}
}

func TestLoad_MissingAndInvalid(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err != nil {
		t.Errorf("missing file: %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.toml")
	os.WriteFile(path, []byte("[[template]]\nid = \"x\"\napp = \"vim\"\n"), 0o600)
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown app")
	}
}

func TestTemplate_NewProvider(t *testing.T) {
	c, _ := Builtin()
	tmpl, _ := c.Template("claude-deepseek")

	p, err := tmpl.NewProvider("")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Name != "DeepSeek" || p.TemplateID != "claude-deepseek" || p.Format != bridge.FormatJSONEnv {
		t.Errorf("provider: %+v", p)
	}
	f, err := p.Fields()
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	if f.BaseURL != "https://api.deepseek.com/anthropic" || f.Models[bridge.SlotMain] != "deepseek-chat" {
		t.Errorf("fields: %+v", f)
	}
}
