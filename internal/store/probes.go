package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/allaspectsdev/provswitch/internal/endpoint"
)

// ProbeRecord is one stored probe outcome.
type ProbeRecord struct {
	RoundID   string               `json:"round_id"`
	Timestamp time.Time            `json:"timestamp"`
	Result    endpoint.ProbeResult `json:"result"`
}

// InsertProbeRound stores the results of one speed-test round and returns
// the generated round ID.
func (s *Store) InsertProbeRound(ctx context.Context, providerID string, results []endpoint.ProbeResult, at time.Time) (string, error) {
	roundID := uuid.NewString()
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: insert probe round: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ts := formatTime(at)
	for _, r := range results {
		var latency sql.NullInt64
		if r.LatencyMs != nil {
			latency = sql.NullInt64{Int64: *r.LatencyMs, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO probe_results (provider_id, round_id, timestamp, url, latency_ms, http_status, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			providerID, roundID, ts, r.URL, latency, r.HTTPStatus, r.Error,
		); err != nil {
			return "", fmt.Errorf("store: insert probe round: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: insert probe round: %w", err)
	}
	return roundID, nil
}

// ListProbeResults returns up to limit of the provider's most recent probe
// records, newest first.
func (s *Store) ListProbeResults(ctx context.Context, providerID string, limit int) ([]ProbeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.reader.QueryContext(ctx, `
		SELECT round_id, timestamp, url, latency_ms, http_status, error
		FROM probe_results
		WHERE provider_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, providerID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list probe results: %w", err)
	}
	defer rows.Close()

	out := []ProbeRecord{}
	for rows.Next() {
		var (
			rec     ProbeRecord
			ts      string
			latency sql.NullInt64
		)
		if err := rows.Scan(&rec.RoundID, &ts, &rec.Result.URL, &latency, &rec.Result.HTTPStatus, &rec.Result.Error); err != nil {
			return nil, fmt.Errorf("store: scan probe result: %w", err)
		}
		rec.Timestamp = parseTime(ts)
		if latency.Valid {
			ms := latency.Int64
			rec.Result.LatencyMs = &ms
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list probe results: %w", err)
	}
	return out, nil
}
