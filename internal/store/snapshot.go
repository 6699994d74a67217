package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

// LoadSnapshot retrieves the exchange snapshot for a scope.
// A missing or unreadable snapshot is not an error: the exchange starts
// empty and the mirror fills in whatever survives. The second return value
// reports whether a usable snapshot was found.
func (s *Store) LoadSnapshot(ctx context.Context, scope domain.Scope) (*domain.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	key := snapshotKey(scope.EventID, scope.UserID)

	var snapshot domain.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snapshot)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return &domain.Snapshot{}, false, nil
	}
	if err != nil {
		// Corrupt snapshot data. Start empty rather than lock the user out.
		if s.logger != nil {
			s.logger.Warn("Discarding unreadable snapshot", "scope", scope.String(), "error", err)
		}
		return &domain.Snapshot{}, false, nil
	}

	return &snapshot, true, nil
}

// SaveSnapshot writes the whole snapshot for a scope in one atomic set.
// Every mutation persists the full own-card-plus-contacts unit, so a
// reader never observes a partially applied change.
func (s *Store) SaveSnapshot(ctx context.Context, scope domain.Scope, snapshot *domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := snapshotKey(scope.EventID, scope.UserID)
	if err := s.set(key, snapshot); err != nil {
		return fmt.Errorf("save snapshot %s: %w", scope.String(), err)
	}
	return nil
}

// DeleteSnapshot removes the snapshot for a scope.
func (s *Store) DeleteSnapshot(ctx context.Context, scope domain.Scope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.delete(snapshotKey(scope.EventID, scope.UserID))
}
