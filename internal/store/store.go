// Package store persists server state in a local Badger database.
//
// It holds the durable copy of every attendee's exchange snapshot plus the
// account, session, and instance records. The snapshot layout mirrors the
// mobile client's local cache so the two stay key-compatible.
package store

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes. Snapshot and preference keys use the legacy "leads_" layout
// shared with the mobile client's local cache; everything else is namespaced
// with a colon.
const (
	snapshotKeyPrefix    = "leads_"
	sendOnScanKeySuffix  = "_sendOnScan"
	userPrefix           = "user:"
	userByEmailPrefix    = "user:idx:email:"
	sessionPrefix        = "session:"
	sessionByTokenPrefix = "session:idx:token:"
	sessionByUserPrefix  = "session:idx:user:"
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// New creates a new Store instance with the given database path.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path)
	}

	return &Store{
		db:     db,
		logger: logger,
	}, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	return s.db.Close()
}

// snapshotKey builds the per-scope snapshot key: leads_{eventID}_{userID}.
func snapshotKey(eventID, userID string) []byte {
	return []byte(snapshotKeyPrefix + eventID + "_" + userID)
}

// sendOnScanKey builds the per-scope preference key, derived from the
// snapshot key: leads_{eventID}_{userID}_sendOnScan.
func sendOnScanKey(eventID, userID string) []byte {
	return append(snapshotKey(eventID, userID), sendOnScanKeySuffix...)
}

// normalizeEmail lowercases and trims an email for index lookups.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Helper methods for database operations.

// get retrieves a value by key.
func (s *Store) get(key []byte, dest any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
}

// set stores a value by key.
func (s *Store) set(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// delete removes a key from the database.
func (s *Store) delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// exists checks if a key exists.
func (s *Store) exists(key []byte) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
