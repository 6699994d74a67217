package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

// CreateUser stores a new user and its email index entry.
// The email index is keyed on the normalized address so lookups are
// case-insensitive.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := []byte(userPrefix + user.ID)
	emailKey := []byte(userByEmailPrefix + normalizeEmail(user.Email))

	return s.db.Update(func(txn *badger.Txn) error {
		// Reject duplicate emails before writing anything.
		if _, err := txn.Get(emailKey); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshal user: %w", err)
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(emailKey, []byte(user.ID))
	})
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user domain.User
	if err := s.get([]byte(userPrefix+id), &user); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user via the email index.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	emailKey := []byte(userByEmailPrefix + normalizeEmail(email))

	var userID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			userID = string(val)
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}

	return s.GetUser(ctx, userID)
}

// UpdateUser updates an existing user, keeping the email index in sync.
func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	old, err := s.GetUser(ctx, user.ID)
	if err != nil {
		return err
	}

	key := []byte(userPrefix + user.ID)

	return s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshal user: %w", err)
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}

		oldEmail := normalizeEmail(old.Email)
		newEmail := normalizeEmail(user.Email)
		if oldEmail != newEmail {
			if err := txn.Delete([]byte(userByEmailPrefix + oldEmail)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set([]byte(userByEmailPrefix+newEmail), []byte(user.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListUsers returns all users, in key order.
func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(userPrefix)
	idxPrefix := []byte(userByEmailPrefix)
	var users []*domain.User

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			// Skip index entries under the same namespace.
			if len(item.Key()) >= len(idxPrefix) && string(item.Key()[:len(idxPrefix)]) == string(idxPrefix) {
				continue
			}

			err := item.Value(func(val []byte) error {
				var user domain.User
				if err := json.Unmarshal(val, &user); err != nil {
					return err
				}
				users = append(users, &user)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
