package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/provswitch/internal/provider"
)

// SwitchStore is the persistence a Switcher needs.
type SwitchStore interface {
	GetProvider(ctx context.Context, id string) (*provider.Provider, error)
	SetCurrentProvider(ctx context.Context, id string) error
	TouchEndpoint(ctx context.Context, providerID, url string, at time.Time) error
}

// Switcher makes a saved provider the live configuration of its app.
type Switcher struct {
	store    SwitchStore
	writer   *Writer
	notFound error
	now      func() time.Time
}

// NewSwitcher returns a Switcher. notFound is the store's sentinel returned
// by TouchEndpoint for a URL that is not a custom endpoint; it is ignored.
func NewSwitcher(st SwitchStore, w *Writer, notFound error) *Switcher {
	return &Switcher{store: st, writer: w, notFound: notFound, now: time.Now}
}

// Result describes a completed switch.
type Result struct {
	Provider *provider.Provider `json:"provider"`
	Paths    []string           `json:"paths"`
}

// Switch writes the provider's live files, marks it current and stamps the
// last-used time of its base URL when that URL is a custom endpoint.
func (s *Switcher) Switch(ctx context.Context, providerID string) (*Result, error) {
	p, err := s.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("live: switch: %w", err)
	}

	paths, err := s.writer.Apply(p)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetCurrentProvider(ctx, p.ID); err != nil {
		return nil, fmt.Errorf("live: switch: %w", err)
	}
	p.Current = true

	if f, err := p.Fields(); err == nil && f.BaseURL != "" {
		err := s.store.TouchEndpoint(ctx, p.ID, f.BaseURL, s.now())
		if err != nil && (s.notFound == nil || !errors.Is(err, s.notFound)) {
			log.Warn().Err(err).Str("provider_id", p.ID).Msg("failed to record endpoint use")
		}
	}

	log.Info().
		Str("provider_id", p.ID).
		Str("app", string(p.App)).
		Strs("paths", paths).
		Msg("switched provider")
	return &Result{Provider: p, Paths: paths}, nil
}
