// Package live writes a provider's configuration to the files the external
// CLI tools read. Every file is written atomically.
package live

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/allaspectsdev/provswitch/internal/bridge"
	"github.com/allaspectsdev/provswitch/internal/provider"
)

// Dirs are the configuration directories of the three tools.
type Dirs struct {
	Claude string
	Codex  string
	Gemini string
}

// DefaultDirs returns the tools' default directories under the user's home.
func DefaultDirs() Dirs {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Dirs{
		Claude: filepath.Join(home, ".claude"),
		Codex:  filepath.Join(home, ".codex"),
		Gemini: filepath.Join(home, ".gemini"),
	}
}

// KeyResolver turns a stored API key value into the literal key. Values
// that are not references are returned unchanged.
type KeyResolver interface {
	Resolve(value string) (string, error)
}

// ErrMalformedBlob is returned when a provider blob cannot be turned into
// the tool's files.
var ErrMalformedBlob = errors.New("live: malformed provider blob")

// Writer writes provider blobs to the live configuration files.
type Writer struct {
	dirs     Dirs
	resolver KeyResolver
}

// NewWriter creates a Writer. A nil resolver writes API keys verbatim.
func NewWriter(dirs Dirs, resolver KeyResolver) *Writer {
	return &Writer{dirs: dirs, resolver: resolver}
}

// Paths returns the files Apply writes for app.
func (w *Writer) Paths(app provider.App) []string {
	switch app {
	case provider.AppClaude:
		return []string{filepath.Join(w.dirs.Claude, "settings.json")}
	case provider.AppCodex:
		return []string{filepath.Join(w.dirs.Codex, "auth.json"), filepath.Join(w.dirs.Codex, "config.toml")}
	case provider.AppGemini:
		return []string{filepath.Join(w.dirs.Gemini, ".env")}
	}
	return nil
}

// Apply writes p to its tool's files and returns the paths written. Key
// references in the blob are resolved first; the stored blob is not changed.
func (w *Writer) Apply(p *provider.Provider) ([]string, error) {
	b, err := p.Bridge()
	if err != nil {
		return nil, fmt.Errorf("live: %w", err)
	}
	blob, err := w.resolveKey(b, p.Blob)
	if err != nil {
		return nil, fmt.Errorf("live: provider %s: %w", p.Name, err)
	}

	files, err := render(p.App, blob)
	if err != nil {
		return nil, fmt.Errorf("live: provider %s: %w", p.Name, err)
	}
	paths := w.Paths(p.App)
	for i, data := range files {
		if err := WriteFileAtomic(paths[i], data, 0o600); err != nil {
			return nil, err
		}
	}
	log.Info().
		Str("provider", p.Name).
		Str("app", string(p.App)).
		Strs("files", paths).
		Msg("live configuration written")
	return paths, nil
}

func (w *Writer) resolveKey(b bridge.Bridge, blob string) (string, error) {
	if w.resolver == nil {
		return blob, nil
	}
	stored := b.ReadAPIKey(blob)
	if stored == "" {
		return blob, nil
	}
	key, err := w.resolver.Resolve(stored)
	if err != nil {
		return "", fmt.Errorf("resolve api key: %w", err)
	}
	if key == stored {
		return blob, nil
	}
	return b.WriteAPIKey(blob, key), nil
}

// render turns a blob into file contents in the order of Writer.Paths.
func render(app provider.App, blob string) ([][]byte, error) {
	switch app {
	case provider.AppClaude:
		if !gjson.Valid(blob) {
			return nil, ErrMalformedBlob
		}
		return [][]byte{indentJSON(blob)}, nil

	case provider.AppCodex:
		if !gjson.Valid(blob) {
			return nil, ErrMalformedBlob
		}
		auth := gjson.Get(blob, "auth")
		authJSON := "{}"
		if auth.IsObject() {
			authJSON = auth.Raw
		}
		config := gjson.Get(blob, "config").String()
		return [][]byte{indentJSON(authJSON), []byte(config)}, nil

	case provider.AppGemini:
		text := blob
		if gjson.Valid(blob) && gjson.Get(blob, "env").IsObject() {
			text = bridge.EnvFromJSON(blob)
		}
		return [][]byte{[]byte(text)}, nil
	}
	return nil, fmt.Errorf("unknown app %q", app)
}

func indentJSON(raw string) []byte {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return []byte(raw)
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// WriteFileAtomic writes data to a temporary file in the target directory
// and renames it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("live: create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("live: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("live: write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("live: sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("live: close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("live: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("live: rename %s: %w", path, err)
	}
	return nil
}
