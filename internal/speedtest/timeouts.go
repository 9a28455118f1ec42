package speedtest

import (
	"time"

	"github.com/allaspectsdev/provswitch/internal/provider"
)

// DefaultTimeout applies to apps without an explicit entry.
const DefaultTimeout = 8 * time.Second

// Timeouts maps an application family to its per-probe timeout.
type Timeouts struct {
	PerApp   map[provider.App]time.Duration
	Fallback time.Duration
}

// DefaultTimeouts returns the built-in timeouts: 8s for Claude and Gemini,
// 12s for Codex.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		PerApp: map[provider.App]time.Duration{
			provider.AppClaude: 8 * time.Second,
			provider.AppCodex:  12 * time.Second,
			provider.AppGemini: 8 * time.Second,
		},
		Fallback: DefaultTimeout,
	}
}

// For returns the timeout for app, falling back to t.Fallback and then to
// DefaultTimeout.
func (t Timeouts) For(app provider.App) time.Duration {
	if d, ok := t.PerApp[app]; ok && d > 0 {
		return d
	}
	if t.Fallback > 0 {
		return t.Fallback
	}
	return DefaultTimeout
}
