package daemon

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/provswitch/internal/catalog"
	"github.com/allaspectsdev/provswitch/internal/config"
	"github.com/allaspectsdev/provswitch/internal/live"
	"github.com/allaspectsdev/provswitch/internal/metrics"
	"github.com/allaspectsdev/provswitch/internal/provider"
	"github.com/allaspectsdev/provswitch/internal/session"
	"github.com/allaspectsdev/provswitch/internal/speedtest"
	"github.com/allaspectsdev/provswitch/internal/store"
	"github.com/allaspectsdev/provswitch/internal/vault"
)

// Services bundles the collaborators shared by the API server and the CLI.
type Services struct {
	Store     *store.Store
	Catalog   *catalog.Catalog
	Collector *metrics.Collector
	Transport *speedtest.HTTPTransport
	Engine    *speedtest.Engine
	Sessions  *session.Manager
	Vault     *vault.Vault
	Switcher  *live.Switcher
}

// Build wires the services for cfg on top of an open store.
func Build(cfg *config.Config, st *store.Store, collector *metrics.Collector) (*Services, error) {
	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	transport := speedtest.NewHTTPTransport(cfg.SpeedTest.UserAgent)
	engine := speedtest.New(transport,
		speedtest.WithCollector(collector),
		speedtest.WithWarmup(cfg.SpeedTest.Warmup),
	)

	opts := session.Options{
		Store:        st,
		Prober:       engine,
		Presets:      cat,
		Collector:    collector,
		Timeouts:     Timeouts(cfg.SpeedTest),
		AutoSelect:   cfg.SpeedTest.AutoSelect,
		SelfWriteTTL: cfg.Session.SelfWriteTTL(),
	}
	if cfg.History.Enabled {
		opts.Recorder = store.NewProbeHistory(st)
	}
	mgr, err := session.NewManager(opts, cfg.Session.MaxOpen)
	if err != nil {
		return nil, fmt.Errorf("creating session manager: %w", err)
	}

	v := vault.New()
	dirs := live.Dirs{Claude: cfg.Live.ClaudeDir, Codex: cfg.Live.CodexDir, Gemini: cfg.Live.GeminiDir}
	switcher := live.NewSwitcher(st, live.NewWriter(dirs, v), store.ErrNotFound)

	log.Debug().
		Bool("auto_select", opts.AutoSelect).
		Bool("history", cfg.History.Enabled).
		Int("max_sessions", cfg.Session.MaxOpen).
		Msg("services initialized")

	return &Services{
		Store:     st,
		Catalog:   cat,
		Collector: collector,
		Transport: transport,
		Engine:    engine,
		Sessions:  mgr,
		Vault:     v,
		Switcher:  switcher,
	}, nil
}

// Close ends every open session and drops pooled probe connections. The
// store is owned by the caller.
func (s *Services) Close() {
	s.Sessions.CloseAll()
	s.Transport.CloseIdle()
}

// Timeouts converts the configured per-app probe timeouts.
func Timeouts(c config.SpeedTestConfig) speedtest.Timeouts {
	t := speedtest.Timeouts{
		PerApp:   make(map[provider.App]time.Duration, len(provider.Apps)),
		Fallback: time.Duration(c.DefaultTimeoutMs) * time.Millisecond,
	}
	for _, app := range provider.Apps {
		t.PerApp[app] = c.TimeoutFor(string(app))
	}
	return t
}
