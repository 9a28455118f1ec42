// Package vault stores provider API keys in the OS keychain. A provider blob
// may carry a key reference instead of the secret; references are resolved
// only when the live configuration files are written.
package vault

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"
)

const serviceName = "provswitch"

const (
	keyringPrefix = "keyring://"
	envPrefix     = "env:"
	filePrefix    = "file://"
	envKeyPrefix  = "PROVSWITCH_KEY_"
)

// ErrNoKey is returned when a named key is neither in the keychain nor in
// its fallback environment variable.
var ErrNoKey = errors.New("vault: no key found")

// Vault provides API key storage in the OS keychain, with an environment
// variable fallback for headless machines.
type Vault struct{}

// New creates a new Vault instance.
func New() *Vault {
	return &Vault{}
}

// Set stores the key under name.
func (v *Vault) Set(name, key string) error {
	if name == "" {
		return errors.New("vault: empty key name")
	}
	if err := keyring.Set(serviceName, name, key); err != nil {
		return fmt.Errorf("vault: set %s: %w", name, err)
	}
	return nil
}

// Get returns the key stored under name, falling back to the environment
// variable PROVSWITCH_KEY_<NAME>.
func (v *Vault) Get(name string) (string, error) {
	secret, err := keyring.Get(serviceName, name)
	if err == nil && secret != "" {
		return secret, nil
	}
	envKey := EnvName(name)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("%w for %q: not in keychain and %s not set", ErrNoKey, name, envKey)
}

// Delete removes the key stored under name.
func (v *Vault) Delete(name string) error {
	if err := keyring.Delete(serviceName, name); err != nil {
		return fmt.Errorf("vault: delete %s: %w", name, err)
	}
	return nil
}

// Available returns the subset of names that currently resolve to a key,
// sorted.
func (v *Vault) Available(names []string) []string {
	var out []string
	for _, n := range names {
		if _, err := v.Get(n); err == nil {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// EnvName returns the fallback environment variable for a key name.
func EnvName(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_")
	return envKeyPrefix + strings.ToUpper(r.Replace(name))
}

// Ref returns the keychain reference for name, suitable for storing in a
// provider blob in place of the secret.
func Ref(name string) string {
	return keyringPrefix + serviceName + "/" + name
}

// KeyName returns the keychain entry name a "keyring://" reference points
// at.
func KeyName(ref string) (string, bool) {
	rest, ok := strings.CutPrefix(ref, keyringPrefix)
	if !ok {
		return "", false
	}
	svc, name, ok := strings.Cut(rest, "/")
	if !ok || svc != serviceName || name == "" {
		return "", false
	}
	return name, true
}

// IsKeyRef reports whether s looks like a key reference rather than a
// literal key.
func IsKeyRef(s string) bool {
	return strings.HasPrefix(s, keyringPrefix) ||
		strings.HasPrefix(s, envPrefix) ||
		strings.HasPrefix(s, filePrefix)
}

// ResolveKeyRef parses a key reference and returns the key it points at.
// Supported formats:
//   - "keyring://provswitch/<name>"
//   - "env:VARIABLE_NAME"
//   - "file:///path/to/key"
func (v *Vault) ResolveKeyRef(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, keyringPrefix):
		name, ok := KeyName(ref)
		if !ok {
			return "", fmt.Errorf("vault: invalid key reference %q (expected %q)", ref, Ref("<name>"))
		}
		return v.Get(name)

	case strings.HasPrefix(ref, envPrefix):
		envVar := strings.TrimPrefix(ref, envPrefix)
		if val := os.Getenv(envVar); val != "" {
			return val, nil
		}
		return "", fmt.Errorf("vault: environment variable %q is not set", envVar)

	case strings.HasPrefix(ref, filePrefix):
		path := strings.TrimPrefix(ref, filePrefix)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("vault: reading key file %q: %w", path, err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("vault: key file %q is empty", path)
		}
		return key, nil
	}
	return "", fmt.Errorf("vault: invalid key reference %q", ref)
}

// Resolve returns value unchanged unless it is a key reference, in which
// case the referenced key is returned.
func (v *Vault) Resolve(value string) (string, error) {
	if !IsKeyRef(value) {
		return value, nil
	}
	return v.ResolveKeyRef(value)
}
