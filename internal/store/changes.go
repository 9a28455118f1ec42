package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/allaspectsdev/provswitch/internal/commit"
)

var _ commit.Committer = (*Store)(nil)

// CommitChange persists a session commit in one transaction: the provider
// insert for a new provider, the endpoint diff, then the blob. A failure at
// any step rolls back every earlier step.
func (s *Store) CommitChange(ctx context.Context, c commit.Change) error {
	if c.Provider == nil {
		return errors.New("store: commit change: no provider")
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if c.Create {
			if err := insertProvider(ctx, tx, c.Provider); err != nil {
				return err
			}
		}
		id := c.Provider.ID
		if !c.Plan.Empty() {
			if err := applyEndpointDiff(ctx, tx, id, c.Plan.ToRemove, c.Entries, c.Plan.ExplicitClear); err != nil {
				return err
			}
		}
		if c.Blob != nil {
			if err := updateProviderBlob(ctx, tx, id, *c.Blob); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("store: commit change: %w", err)
	}
	return err
}
