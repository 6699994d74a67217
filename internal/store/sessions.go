package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

// Session keys: the record itself plus two indexes, one by refresh token
// hash for the refresh flow and one by user for listing.

func sessionKey(id string) []byte {
	return []byte(sessionPrefix + id)
}

func sessionTokenKey(tokenHash string) []byte {
	return []byte(sessionByTokenPrefix + tokenHash)
}

func sessionUserKey(userID, sessionID string) []byte {
	return []byte(sessionByUserPrefix + userID + ":" + sessionID)
}

// CreateSession stores a new session and its two index entries atomically.
func (s *Store) CreateSession(_ context.Context, session *domain.Session) error {
	key := sessionKey(session.ID)

	exists, err := s.exists(key)
	if err != nil {
		return fmt.Errorf("check session exists: %w", err)
	}
	if exists {
		return ErrAlreadyExists.WithMessage("session already exists")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set(sessionTokenKey(session.RefreshTokenHash), []byte(session.ID)); err != nil {
			return err
		}
		return txn.Set(sessionUserKey(session.UserID, session.ID), []byte{})
	})
}

// GetSession retrieves a session by ID. Expired sessions report as expired
// rather than missing so the client can distinguish re-login from revocation.
func (s *Store) GetSession(_ context.Context, id string) (*domain.Session, error) {
	var session domain.Session
	if err := s.get(sessionKey(id), &session); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.IsExpired() {
		return nil, ErrSessionExpired
	}
	return &session, nil
}

// GetSessionByRefreshToken resolves a session through the token hash index.
func (s *Store) GetSessionByRefreshToken(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var sessionID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionTokenKey(tokenHash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			sessionID = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("lookup session by token: %w", err)
	}

	return s.GetSession(ctx, sessionID)
}

// UpdateSession rewrites a session, migrating the token index when the
// refresh token rotated.
func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	previous, err := s.GetSession(ctx, session.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(sessionKey(session.ID), data); err != nil {
			return err
		}

		if previous.RefreshTokenHash == session.RefreshTokenHash {
			return nil
		}
		if err := txn.Delete(sessionTokenKey(previous.RefreshTokenHash)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(sessionTokenKey(session.RefreshTokenHash), []byte(session.ID))
	})
}

// DeleteSession removes a session and its indexes. Missing sessions are not
// an error so logout is idempotent.
func (s *Store) DeleteSession(_ context.Context, sessionID string) error {
	// Read directly, bypassing the expiry check, so indexes of expired
	// sessions still get cleaned up.
	var session domain.Session
	if err := s.get(sessionKey(sessionID), &session); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("get session for deletion: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(sessionKey(sessionID)); err != nil {
			return err
		}
		if err := txn.Delete(sessionTokenKey(session.RefreshTokenHash)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Delete(sessionUserKey(session.UserID, sessionID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
}

// ListUserSessions returns a user's active sessions via the user index.
func (s *Store) ListUserSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	prefix := []byte(sessionByUserPrefix + userID + ":")

	var sessions []*domain.Session
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			sessionID := key[strings.LastIndex(key, ":")+1:]
			if sessionID == "" {
				continue
			}

			session, err := s.GetSession(ctx, sessionID)
			if err != nil {
				// Expired and orphaned index entries both read as gone
				if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrSessionNotFound) {
					continue
				}
				return err
			}
			sessions = append(sessions, session)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}

	return sessions, nil
}

// DeleteExpiredSessions sweeps expired sessions and returns how many were
// removed.
func (s *Store) DeleteExpiredSessions(ctx context.Context) (int, error) {
	expired, err := s.findExpiredSessionIDs()
	if err != nil {
		return 0, err
	}

	for _, sessionID := range expired {
		if err := s.DeleteSession(ctx, sessionID); err != nil {
			s.logger.Warn("failed to delete expired session", "session_id", sessionID, "error", err)
		}
	}
	return len(expired), nil
}

// findExpiredSessionIDs scans session records, skipping the idx keyspace.
func (s *Store) findExpiredSessionIDs() ([]string, error) {
	prefix := []byte(sessionPrefix)
	idxPrefix := sessionPrefix + "idx:"

	var expired []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if strings.HasPrefix(string(item.Key()), idxPrefix) {
				continue
			}

			err := item.Value(func(val []byte) error {
				var session domain.Session
				if json.Unmarshal(val, &session) != nil {
					// Malformed record, leave it for manual inspection
					return nil
				}
				if session.IsExpired() {
					expired = append(expired, session.ID)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find expired sessions: %w", err)
	}
	return expired, nil
}
