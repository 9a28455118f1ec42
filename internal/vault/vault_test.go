package vault

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestKeychainRoundTrip(t *testing.T) {
	keyring.MockInit()
	v := New()

	if err := v.Set("work", "sk-work"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := v.ResolveKeyRef(Ref("work"))
	if err != nil {
		t.Fatalf("ResolveKeyRef: %v", err)
	}
	if got != "sk-work" {
		t.Errorf("got %q, want %q", got, "sk-work")
	}

	if err := v.Delete("work"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := v.Get("work"); !errors.Is(err, ErrNoKey) {
		t.Errorf("Get after delete: got %v, want ErrNoKey", err)
	}
}

func TestGet_EnvFallback(t *testing.T) {
	keyring.MockInit()
	t.Setenv("PROVSWITCH_KEY_MY_RELAY", "env-key-value")

	got, err := New().Get("my-relay")
	if err != nil {
		t.Fatalf("Get with env fallback: %v", err)
	}
	if got != "env-key-value" {
		t.Errorf("got %q, want %q", got, "env-key-value")
	}
}

func TestAvailable(t *testing.T) {
	keyring.MockInit()
	v := New()
	v.Set("b", "1")
	v.Set("a", "2")

	got := v.Available([]string{"b", "missing", "a"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Available: got %v", got)
	}
}

func TestResolveKeyRef_Env(t *testing.T) {
	v := New()
	t.Setenv("TEST_PROVSWITCH_VAULT_KEY", "sk-test-1234")

	got, err := v.ResolveKeyRef("env:TEST_PROVSWITCH_VAULT_KEY")
	if err != nil {
		t.Fatalf("ResolveKeyRef(env:): %v", err)
	}
	if got != "sk-test-1234" {
		t.Errorf("got %q, want %q", got, "sk-test-1234")
	}

	os.Unsetenv("NONEXISTENT_KEY_VAR")
	if _, err := v.ResolveKeyRef("env:NONEXISTENT_KEY_VAR"); err == nil {
		t.Fatal("expected error for unset env var")
	}
}

func TestResolveKeyRef_File(t *testing.T) {
	v := New()
	dir := t.TempDir()

	keyFile := filepath.Join(dir, "api-key.txt")
	os.WriteFile(keyFile, []byte("sk-file-secret-key\n"), 0o600)
	got, err := v.ResolveKeyRef("file://" + keyFile)
	if err != nil {
		t.Fatalf("ResolveKeyRef(file://): %v", err)
	}
	if got != "sk-file-secret-key" {
		t.Errorf("got %q, want %q", got, "sk-file-secret-key")
	}

	empty := filepath.Join(dir, "empty.txt")
	os.WriteFile(empty, []byte("  \n"), 0o600)
	if _, err := v.ResolveKeyRef("file://" + empty); err == nil {
		t.Error("expected error for empty key file")
	}
	if _, err := v.ResolveKeyRef("file:///nonexistent/path/key.txt"); err == nil {
		t.Error("expected error for missing key file")
	}
}

func TestResolveKeyRef_Malformed(t *testing.T) {
	v := New()
	for _, ref := range []string{
		"plaintext:secret",
		"keyring://badformat",
		"keyring://other-service/work",
		"keyring://provswitch/",
	} {
		if _, err := v.ResolveKeyRef(ref); err == nil {
			t.Errorf("ResolveKeyRef(%q): expected error", ref)
		}
	}
}

func TestResolve_LiteralPassesThrough(t *testing.T) {
	v := New()
	got, err := v.Resolve("sk-literal")
	if err != nil || got != "sk-literal" {
		t.Errorf("Resolve literal: got %q, %v", got, err)
	}
	if IsKeyRef("sk-literal") || !IsKeyRef(Ref("x")) {
		t.Error("IsKeyRef misclassified")
	}
}

func TestEnvName(t *testing.T) {
	if got := EnvName("my-relay.eu"); got != "PROVSWITCH_KEY_MY_RELAY_EU" {
		t.Errorf("EnvName: got %q", got)
	}
}

func TestKeyName(t *testing.T) {
	if name, ok := KeyName(Ref("kimi")); !ok || name != "kimi" {
		t.Errorf("KeyName(Ref): got %q, %v", name, ok)
	}
	for _, ref := range []string{"env:X", "keyring://other/kimi", "keyring://provswitch/", "sk-literal"} {
		if _, ok := KeyName(ref); ok {
			t.Errorf("KeyName(%q): expected no name", ref)
		}
	}
}
