package store

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/provswitch/internal/commit"
	"github.com/allaspectsdev/provswitch/internal/endpoint"
)

var _ commit.Store = (*Store)(nil)

// ProbeHistory adapts Store to the session's probe recorder. Recording is
// best effort: a failed insert is logged and never fails the round.
type ProbeHistory struct {
	store *Store
	now   func() time.Time
}

// NewProbeHistory creates a ProbeHistory writing to s.
func NewProbeHistory(s *Store) *ProbeHistory {
	return &ProbeHistory{store: s, now: time.Now}
}

// RecordRound stores one completed probe round for providerID.
func (h *ProbeHistory) RecordRound(ctx context.Context, providerID string, results []endpoint.ProbeResult) {
	if providerID == "" || len(results) == 0 {
		return
	}
	if _, err := h.store.InsertProbeRound(ctx, providerID, results, h.now()); err != nil {
		log.Warn().Err(err).Str("provider", providerID).Msg("failed to record probe round")
	}
}
