// Package bridge reads and writes the semantic fields of a provider (API key,
// base URL, model names) directly against its serialized configuration blob.
//
// One adapter exists per blob format. Writes are pure functions of the current
// blob and the new value, and they patch the blob in place so that key order,
// unknown keys and hand-written formatting survive. Reads never fail: a blob
// that cannot be parsed yields empty values and a warning in the log.
package bridge

import (
	"fmt"
)

// Format is the serialization format tag of a provider configuration.
type Format string

const (
	// FormatJSONEnv is a JSON object with the fields under an "env" object.
	FormatJSONEnv Format = "json-env"
	// FormatTOMLFragment is a JSON wrapper holding a TOML "config" string
	// and an "auth" object.
	FormatTOMLFragment Format = "toml-fragment"
	// FormatDotenv is a list of KEY=value lines.
	FormatDotenv Format = "dotenv-like"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	switch f {
	case FormatJSONEnv, FormatTOMLFragment, FormatDotenv:
		return true
	}
	return false
}

// ModelSlot names one of the model fields a provider can configure.
type ModelSlot string

const (
	SlotMain      ModelSlot = "main"
	SlotHaiku     ModelSlot = "haiku"
	SlotSonnet    ModelSlot = "sonnet"
	SlotOpus      ModelSlot = "opus"
	SlotReasoning ModelSlot = "reasoning"
)

// Bridge exposes field accessors over a configuration blob.
type Bridge interface {
	Format() Format
	// Slots lists the model slots this format supports, in display order.
	Slots() []ModelSlot

	ReadAPIKey(blob string) string
	WriteAPIKey(blob, value string) string

	// ReadBaseURL returns the normalized base URL.
	ReadBaseURL(blob string) string
	// WriteBaseURL stores the normalized value. An empty value removes it.
	WriteBaseURL(blob, value string) string

	ReadModel(blob string, slot ModelSlot) string
	WriteModel(blob string, slot ModelSlot, value string) string
}

// For returns the adapter for the given format.
func For(f Format) (Bridge, error) {
	switch f {
	case FormatJSONEnv:
		return jsonEnv{}, nil
	case FormatTOMLFragment:
		return tomlFragment{}, nil
	case FormatDotenv:
		return dotenv{}, nil
	default:
		return nil, fmt.Errorf("bridge: unknown format %q", f)
	}
}

// Fields is the semantic projection of a blob. It is never persisted.
type Fields struct {
	APIKey  string               `json:"api_key"`
	BaseURL string               `json:"base_url"`
	Models  map[ModelSlot]string `json:"models"`
}

// Read projects the blob into Fields using b.
func Read(b Bridge, blob string) Fields {
	f := Fields{
		APIKey:  b.ReadAPIKey(blob),
		BaseURL: b.ReadBaseURL(blob),
		Models:  make(map[ModelSlot]string),
	}
	for _, slot := range b.Slots() {
		if v := b.ReadModel(blob, slot); v != "" {
			f.Models[slot] = v
		}
	}
	return f
}

// Equal reports whether two projections carry the same values.
func (f Fields) Equal(o Fields) bool {
	if f.APIKey != o.APIKey || f.BaseURL != o.BaseURL || len(f.Models) != len(o.Models) {
		return false
	}
	for k, v := range f.Models {
		if o.Models[k] != v {
			return false
		}
	}
	return true
}

// Supports reports whether b exposes the given model slot.
func Supports(b Bridge, slot ModelSlot) bool {
	for _, s := range b.Slots() {
		if s == slot {
			return true
		}
	}
	return false
}
