// Package catalog holds provider templates and their preset endpoint
// candidates. Built-in templates are embedded; a user TOML file can add to or
// replace them.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/provswitch/internal/bridge"
	"github.com/allaspectsdev/provswitch/internal/endpoint"
	"github.com/allaspectsdev/provswitch/internal/provider"
)

//go:embed presets.toml
var builtinTOML []byte

// Template describes a known provider and the endpoints it is reachable at.
type Template struct {
	ID        string       `toml:"id" json:"id"`
	App       provider.App `toml:"app" json:"app"`
	Name      string       `toml:"name" json:"name"`
	Website   string       `toml:"website" json:"website,omitempty"`
	Endpoints []string     `toml:"endpoints" json:"endpoints"`
	Model     string       `toml:"model" json:"model,omitempty"`
}

type file struct {
	Templates []Template `toml:"template"`
}

// Catalog is an ordered, read-only set of templates.
type Catalog struct {
	order []string
	byID  map[string]Template
}

// Builtin returns the embedded catalog.
func Builtin() (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Template)}
	if err := c.merge(builtinTOML, "builtin"); err != nil {
		return nil, err
	}
	return c, nil
}

// Load returns the built-in catalog extended by the templates in path. An
// empty path or a missing file yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	c, err := Builtin()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("path", path).Msg("no user catalog")
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	if err := c.merge(data, path); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) merge(data []byte, source string) error {
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("catalog: parse %s: %w", source, err)
	}
	for i, t := range f.Templates {
		if t.ID == "" {
			return fmt.Errorf("catalog: %s: template %d has no id", source, i)
		}
		if _, err := provider.ParseApp(string(t.App)); err != nil {
			return fmt.Errorf("catalog: %s: template %s: %w", source, t.ID, err)
		}
		t.Endpoints = cleanEndpoints(t.ID, t.Endpoints)
		if _, ok := c.byID[t.ID]; !ok {
			c.order = append(c.order, t.ID)
		}
		c.byID[t.ID] = t
	}
	return nil
}

func cleanEndpoints(id string, raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		if _, err := endpoint.Validate(u); err != nil {
			log.Warn().Err(err).Str("template", id).Msg("skipping preset endpoint")
			continue
		}
		n := endpoint.Normalize(u)
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Presets returns the preset endpoints of a template. Unknown IDs yield nil.
func (c *Catalog) Presets(templateID string) []string {
	t, ok := c.byID[templateID]
	if !ok {
		return nil
	}
	out := make([]string, len(t.Endpoints))
	copy(out, t.Endpoints)
	return out
}

// Template returns the template with the given ID.
func (c *Catalog) Template(id string) (Template, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Templates lists templates in catalog order. An empty app lists all.
func (c *Catalog) Templates(app provider.App) []Template {
	var out []Template
	for _, id := range c.order {
		t := c.byID[id]
		if app == "" || t.App == app {
			out = append(out, t)
		}
	}
	return out
}

// NewProvider returns an unsaved provider seeded from t: the first preset
// endpoint as base URL and the template's model in the main slot.
func (t Template) NewProvider(name string) (provider.Provider, error) {
	if name == "" {
		name = t.Name
	}
	p := provider.Provider{
		App:        t.App,
		Name:       name,
		TemplateID: t.ID,
		Format:     provider.FormatFor(t.App),
	}
	b, err := bridge.For(p.Format)
	if err != nil {
		return provider.Provider{}, fmt.Errorf("catalog: %w", err)
	}
	if len(t.Endpoints) > 0 {
		p.Blob = b.WriteBaseURL(p.Blob, t.Endpoints[0])
	}
	if t.Model != "" {
		p.Blob = b.WriteModel(p.Blob, bridge.SlotMain, t.Model)
	}
	return p, nil
}
