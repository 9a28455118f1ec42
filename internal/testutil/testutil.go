package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/allaspectsdev/provswitch/internal/config"
	"github.com/allaspectsdev/provswitch/internal/provider"
	"github.com/allaspectsdev/provswitch/internal/store"
)

// NewTestStore creates a SQLite store in a temporary directory.
// The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// NewTestConfig returns a valid config whose data and live directories are
// all inside temporary directories.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Server.DataDir = filepath.Join(root, "data")
	cfg.Server.APIAddr = "127.0.0.1:0"
	cfg.Live.ClaudeDir = filepath.Join(root, "claude")
	cfg.Live.CodexDir = filepath.Join(root, "codex")
	cfg.Live.GeminiDir = filepath.Join(root, "gemini")
	cfg.Catalog.File = ""
	return cfg
}

// CreateProvider saves a provider with the given blob and returns it.
func CreateProvider(t *testing.T, st *store.Store, app provider.App, name, blob string) *provider.Provider {
	t.Helper()
	p := &provider.Provider{App: app, Name: name, Blob: blob}
	if err := st.CreateProvider(context.Background(), p); err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	return p
}

// WriteFile writes content to a file in the given directory.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}
