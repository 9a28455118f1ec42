// Package provider defines saved provider profiles and the application
// families they configure.
package provider

import (
	"errors"
	"fmt"
	"time"

	"github.com/allaspectsdev/provswitch/internal/bridge"
)

// App identifies the CLI tool family a provider configures.
type App string

const (
	AppClaude App = "claude"
	AppCodex  App = "codex"
	AppGemini App = "gemini"
)

// Apps lists every supported family in display order.
var Apps = []App{AppClaude, AppCodex, AppGemini}

// ErrUnknownApp is returned by ParseApp for an unsupported family.
var ErrUnknownApp = errors.New("provider: unknown app")

// ParseApp validates s as an App.
func ParseApp(s string) (App, error) {
	switch App(s) {
	case AppClaude, AppCodex, AppGemini:
		return App(s), nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownApp, s)
}

// FormatFor returns the configuration format used by the app.
func FormatFor(app App) bridge.Format {
	return formats[app]
}

var formats = map[App]bridge.Format{
	AppClaude: bridge.FormatJSONEnv,
	AppCodex:  bridge.FormatTOMLFragment,
	AppGemini: bridge.FormatDotenv,
}

// Provider is a saved configuration profile. Format is fixed at creation.
type Provider struct {
	ID         string        `json:"id"`
	App        App           `json:"app"`
	Name       string        `json:"name"`
	TemplateID string        `json:"template_id,omitempty"`
	Format     bridge.Format `json:"format"`
	Blob       string        `json:"blob"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	// Current marks the provider whose config is live for its app.
	Current bool `json:"current"`
}

// Bridge returns the field adapter for the provider's format.
func (p *Provider) Bridge() (bridge.Bridge, error) {
	return bridge.For(p.Format)
}

// Fields projects the provider blob into its semantic fields.
func (p *Provider) Fields() (bridge.Fields, error) {
	b, err := p.Bridge()
	if err != nil {
		return bridge.Fields{}, err
	}
	return bridge.Read(b, p.Blob), nil
}
