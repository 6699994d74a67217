package store

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

// The send-on-scan preference is stored as the literal strings "true" and
// "false" rather than a boolean, matching the mobile client's cache format.
// Anything other than exactly "false" (including absence or garbage) reads
// as enabled, so sharing stays opt-out.

// GetSendOnScan reads the send-on-scan preference for a scope.
func (s *Store) GetSendOnScan(ctx context.Context, scope domain.Scope) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := sendOnScanKey(scope.EventID, scope.UserID)

	var raw string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = string(val)
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	return raw != "false", nil
}

// SetSendOnScan writes the send-on-scan preference for a scope.
func (s *Store) SetSendOnScan(ctx context.Context, scope domain.Scope, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := sendOnScanKey(scope.EventID, scope.UserID)
	value := "true"
	if !enabled {
		value = "false"
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte(value))
	})
}
