package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/allaspectsdev/provswitch/internal/endpoint"
)

// ListEndpoints returns the custom endpoints persisted for a provider in the
// order they were added.
func (s *Store) ListEndpoints(ctx context.Context, providerID string) ([]endpoint.CustomEndpoint, error) {
	rows, err := s.reader.QueryContext(ctx, `
		SELECT url, added_at, last_used FROM custom_endpoints
		WHERE provider_id = ?
		ORDER BY added_at, url`, providerID)
	if err != nil {
		return nil, fmt.Errorf("store: list endpoints: %w", err)
	}
	defer rows.Close()

	out := []endpoint.CustomEndpoint{}
	for rows.Next() {
		var (
			e        endpoint.CustomEndpoint
			added    string
			lastUsed sql.NullString
		)
		if err := rows.Scan(&e.URL, &added, &lastUsed); err != nil {
			return nil, fmt.Errorf("store: scan endpoint: %w", err)
		}
		e.AddedAt = parseTime(added)
		e.LastUsed = parseNullTime(lastUsed)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list endpoints: %w", err)
	}
	return out, nil
}

// AddEndpoint persists a new custom endpoint. The URL is stored normalized;
// adding a URL that is already persisted returns endpoint.ErrDuplicateURL.
func (s *Store) AddEndpoint(ctx context.Context, providerID string, e endpoint.CustomEndpoint) error {
	if _, err := endpoint.Validate(e.URL); err != nil {
		return fmt.Errorf("store: add endpoint: %w", err)
	}
	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now()
	}
	res, err := s.writer.ExecContext(ctx, `
		INSERT OR IGNORE INTO custom_endpoints (provider_id, url, added_at, last_used)
		VALUES (?, ?, ?, ?)`,
		providerID, endpoint.Normalize(e.URL), formatTime(e.AddedAt), nullTime(e.LastUsed),
	)
	if err != nil {
		return fmt.Errorf("store: add endpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: add endpoint: %w", endpoint.ErrDuplicateURL)
	}
	return nil
}

// RemoveEndpoint deletes one custom endpoint, or returns ErrNotFound.
func (s *Store) RemoveEndpoint(ctx context.Context, providerID, url string) error {
	res, err := s.writer.ExecContext(ctx,
		`DELETE FROM custom_endpoints WHERE provider_id = ? AND url = ?`,
		providerID, endpoint.Normalize(url),
	)
	if err != nil {
		return fmt.Errorf("store: remove endpoint: %w", err)
	}
	return requireRow(res, "remove endpoint")
}

// ApplyEndpointDiff removes and inserts endpoints in one transaction. With
// clearAll every endpoint of the provider is removed first. Added records
// replace any existing record for the same URL. Nothing is written unless
// every statement succeeds.
func (s *Store) ApplyEndpointDiff(ctx context.Context, providerID string, remove []string, add []endpoint.CustomEndpoint, clearAll bool) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return applyEndpointDiff(ctx, tx, providerID, remove, add, clearAll)
	})
}

func applyEndpointDiff(ctx context.Context, db dbtx, providerID string, remove []string, add []endpoint.CustomEndpoint, clearAll bool) error {
	var exists int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM providers WHERE id = ?`, providerID).Scan(&exists); err != nil {
		return fmt.Errorf("store: apply endpoint diff: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	if clearAll {
		if _, err := db.ExecContext(ctx, `DELETE FROM custom_endpoints WHERE provider_id = ?`, providerID); err != nil {
			return fmt.Errorf("store: apply endpoint diff: clear: %w", err)
		}
	} else {
		for _, u := range remove {
			if _, err := db.ExecContext(ctx,
				`DELETE FROM custom_endpoints WHERE provider_id = ? AND url = ?`,
				providerID, endpoint.Normalize(u),
			); err != nil {
				return fmt.Errorf("store: apply endpoint diff: remove %s: %w", u, err)
			}
		}
	}

	for _, e := range add {
		if _, err := endpoint.Validate(e.URL); err != nil {
			return fmt.Errorf("store: apply endpoint diff: %w", err)
		}
		if _, err := db.ExecContext(ctx, `
			INSERT OR REPLACE INTO custom_endpoints (provider_id, url, added_at, last_used)
			VALUES (?, ?, ?, ?)`,
			providerID, endpoint.Normalize(e.URL), formatTime(e.AddedAt), nullTime(e.LastUsed),
		); err != nil {
			return fmt.Errorf("store: apply endpoint diff: add %s: %w", e.URL, err)
		}
	}
	return nil
}

// TouchEndpoint records that url was switched to at the given time. The
// record is replaced, keeping its AddedAt. It returns ErrNotFound when url is
// not a persisted custom endpoint of the provider.
func (s *Store) TouchEndpoint(ctx context.Context, providerID, url string, at time.Time) error {
	key := endpoint.Normalize(url)
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: touch endpoint: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var added string
	err = tx.QueryRowContext(ctx,
		`SELECT added_at FROM custom_endpoints WHERE provider_id = ? AND url = ?`,
		providerID, key,
	).Scan(&added)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: touch endpoint: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM custom_endpoints WHERE provider_id = ? AND url = ?`, providerID, key,
	); err != nil {
		return fmt.Errorf("store: touch endpoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO custom_endpoints (provider_id, url, added_at, last_used)
		VALUES (?, ?, ?, ?)`,
		providerID, key, added, formatTime(at),
	); err != nil {
		return fmt.Errorf("store: touch endpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: touch endpoint: %w", err)
	}
	return nil
}
