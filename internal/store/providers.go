package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/allaspectsdev/provswitch/internal/bridge"
	"github.com/allaspectsdev/provswitch/internal/provider"
)

const providerColumns = `id, app, name, template_id, format, blob, created_at, updated_at, is_current`

// CreateProvider inserts p. An empty ID is replaced with a new UUID and the
// timestamps are set to now. The format must be valid for the app.
func (s *Store) CreateProvider(ctx context.Context, p *provider.Provider) error {
	return insertProvider(ctx, s.writer, p)
}

func insertProvider(ctx context.Context, db dbtx, p *provider.Provider) error {
	if _, err := provider.ParseApp(string(p.App)); err != nil {
		return fmt.Errorf("store: create provider: %w", err)
	}
	if p.Format == "" {
		p.Format = provider.FormatFor(p.App)
	}
	if !p.Format.Valid() {
		return fmt.Errorf("store: create provider: unknown format %q", p.Format)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := db.ExecContext(ctx, `
		INSERT INTO providers (id, app, name, template_id, format, blob, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.App), p.Name, p.TemplateID, string(p.Format), p.Blob,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("store: create provider: %w", err)
	}
	return nil
}

// GetProvider returns the provider with the given ID, or ErrNotFound.
func (s *Store) GetProvider(ctx context.Context, id string) (*provider.Provider, error) {
	row := s.reader.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = ?`, id)
	p, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get provider: %w", err)
	}
	return p, nil
}

// FindProvider resolves ref as a provider ID first and then as a name.
func (s *Store) FindProvider(ctx context.Context, ref string) (*provider.Provider, error) {
	p, err := s.GetProvider(ctx, ref)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return p, err
	}
	row := s.reader.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE name = ? ORDER BY created_at LIMIT 1`, ref)
	p, err = scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find provider: %w", err)
	}
	return p, nil
}

// ListProviders returns providers ordered by app then creation time. An
// empty app lists every provider.
func (s *Store) ListProviders(ctx context.Context, app provider.App) ([]*provider.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers`
	var args []any
	if app != "" {
		query += ` WHERE app = ?`
		args = append(args, string(app))
	}
	query += ` ORDER BY app, created_at, id`

	rows, err := s.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list providers: %w", err)
	}
	defer rows.Close()

	var out []*provider.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan provider: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list providers: %w", err)
	}
	return out, nil
}

// UpdateProviderBlob replaces the configuration blob. The format tag is
// never changed.
func (s *Store) UpdateProviderBlob(ctx context.Context, id, blob string) error {
	return updateProviderBlob(ctx, s.writer, id, blob)
}

func updateProviderBlob(ctx context.Context, db dbtx, id, blob string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE providers SET blob = ?, updated_at = ? WHERE id = ?`,
		blob, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("store: update provider blob: %w", err)
	}
	return requireRow(res, "update provider blob")
}

// RenameProvider changes the display name.
func (s *Store) RenameProvider(ctx context.Context, id, name string) error {
	res, err := s.writer.ExecContext(ctx,
		`UPDATE providers SET name = ?, updated_at = ? WHERE id = ?`,
		name, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("store: rename provider: %w", err)
	}
	return requireRow(res, "rename provider")
}

// DeleteProvider removes a provider together with its custom endpoints and
// probe history.
func (s *Store) DeleteProvider(ctx context.Context, id string) error {
	res, err := s.writer.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete provider: %w", err)
	}
	return requireRow(res, "delete provider")
}

// SetCurrentProvider marks id as the active provider of its app, clearing
// the flag on the app's other providers.
func (s *Store) SetCurrentProvider(ctx context.Context, id string) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: set current provider: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var app string
	if err := tx.QueryRowContext(ctx, `SELECT app FROM providers WHERE id = ?`, id).Scan(&app); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("store: set current provider: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE providers SET is_current = 0 WHERE app = ?`, app); err != nil {
		return fmt.Errorf("store: set current provider: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE providers SET is_current = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: set current provider: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: set current provider: %w", err)
	}
	return nil
}

// CurrentProvider returns the active provider of app, or ErrNotFound.
func (s *Store) CurrentProvider(ctx context.Context, app provider.App) (*provider.Provider, error) {
	row := s.reader.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE app = ? AND is_current = 1`, string(app))
	p, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: current provider: %w", err)
	}
	return p, nil
}

// IsCurrent reports whether id is the active provider of its app.
func (s *Store) IsCurrent(ctx context.Context, id string) (bool, error) {
	var cur int
	err := s.reader.QueryRowContext(ctx, `SELECT is_current FROM providers WHERE id = ?`, id).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("store: is current: %w", err)
	}
	return cur == 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProvider(sc scanner) (*provider.Provider, error) {
	var (
		p                provider.Provider
		app, format      string
		created, updated string
		current          int
	)
	if err := sc.Scan(&p.ID, &app, &p.Name, &p.TemplateID, &format, &p.Blob, &created, &updated, &current); err != nil {
		return nil, err
	}
	p.App = provider.App(app)
	p.Format = bridge.Format(format)
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	p.Current = current == 1
	return &p, nil
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
