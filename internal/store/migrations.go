package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// migration is one schema step. Steps are applied in order and each is
// recorded in the migrations table inside its own transaction.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{1, "providers and custom endpoints", []string{schemaProviders, schemaCustomEndpoints}},
	{2, "probe history", []string{schemaProbeResults}},
	{3, "current provider flag", []string{
		`ALTER TABLE providers ADD COLUMN is_current INTEGER NOT NULL DEFAULT 0;`,
	}},
}

// Migrate applies every migration newer than the recorded schema version.
func (s *Store) Migrate() error {
	if _, err := s.writer.Exec(schemaMigrations); err != nil {
		return fmt.Errorf("store: create migrations table: %w", err)
	}
	current, err := s.SchemaVersion()
	if err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(m); err != nil {
			return fmt.Errorf("store: migration v%d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration version, 0 for a
// fresh database.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.writer.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM migrations`).Scan(&v)
	return v, err
}

func (s *Store) apply(m migration) error {
	return s.inTx(context.Background(), func(tx *sql.Tx) error {
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		_, err := tx.Exec(`INSERT INTO migrations (version, applied_at) VALUES (?, ?)`,
			m.version, formatTime(time.Now()))
		return err
	})
}
