package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

// ErrNotFound is returned when a mirror lookup misses.
var ErrNotFound = errors.New("not found")

// cardColumns is the ordered list of card columns shared by the contact
// tables. Must match the scan order in scanCard.
const cardColumns = `first_name, last_name, title, company, email, mobile,
	twitter, linkedin, notes, avatar_url, avatar_blurhash`

// cardValues returns card fields in cardColumns order.
func cardValues(c *domain.Card) []any {
	return []any{
		c.FirstName, c.LastName, c.Title, c.Company, c.Email, c.Mobile,
		c.Twitter, c.LinkedIn, c.Notes, c.AvatarURL, c.AvatarBlurHash,
	}
}

// scanCard scans cardColumns into a card. The ID column is table-specific
// and scanned by the caller.
func cardDests(c *domain.Card) []any {
	return []any{
		&c.FirstName, &c.LastName, &c.Title, &c.Company, &c.Email, &c.Mobile,
		&c.Twitter, &c.LinkedIn, &c.Notes, &c.AvatarURL, &c.AvatarBlurHash,
	}
}

// SetOwnCard upserts a user's own card for an event.
func (m *Mirror) SetOwnCard(ctx context.Context, scope domain.Scope, card *domain.Card) error {
	query := `
		INSERT INTO own_cards (event_id, user_id, ` + cardColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id, user_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			title = excluded.title,
			company = excluded.company,
			email = excluded.email,
			mobile = excluded.mobile,
			twitter = excluded.twitter,
			linkedin = excluded.linkedin,
			notes = excluded.notes,
			avatar_url = excluded.avatar_url,
			avatar_blurhash = excluded.avatar_blurhash,
			updated_at = excluded.updated_at`

	args := append([]any{scope.EventID, scope.UserID}, cardValues(card)...)
	args = append(args, formatTime(time.Now()))

	if _, err := m.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set own card: %w", err)
	}
	return nil
}

// GetOwnCard retrieves a user's own card for an event.
func (m *Mirror) GetOwnCard(ctx context.Context, scope domain.Scope) (*domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM own_cards WHERE event_id = ? AND user_id = ?`

	card := domain.Card{ID: scope.UserID}
	err := m.db.QueryRowContext(ctx, query, scope.EventID, scope.UserID).Scan(cardDests(&card)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get own card: %w", err)
	}
	return &card, nil
}

// SetContacts replaces a user's whole contact list for an event in one
// transaction. The list is written as a unit so concurrent readers never
// see a partially applied change.
func (m *Mirror) SetContacts(ctx context.Context, scope domain.Scope, cards domain.ContactList) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set contacts: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM contacts WHERE event_id = ? AND owner_id = ?`,
		scope.EventID, scope.UserID,
	); err != nil {
		return fmt.Errorf("clear contacts: %w", err)
	}

	insert := `
		INSERT INTO contacts (event_id, owner_id, position, card_id, ` + cardColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for i := range cards {
		args := append([]any{scope.EventID, scope.UserID, i, cards[i].ID}, cardValues(&cards[i])...)
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return fmt.Errorf("insert contact %s: %w", cards[i].ID, err)
		}
	}

	return tx.Commit()
}

// GetContacts returns a user's contact list for an event in insertion order.
func (m *Mirror) GetContacts(ctx context.Context, scope domain.Scope) (domain.ContactList, error) {
	query := `SELECT card_id, ` + cardColumns + `
		FROM contacts WHERE event_id = ? AND owner_id = ? ORDER BY position`

	rows, err := m.db.QueryContext(ctx, query, scope.EventID, scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	defer rows.Close()

	var cards domain.ContactList
	for rows.Next() {
		var card domain.Card
		dests := append([]any{&card.ID}, cardDests(&card)...)
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return cards, nil
}

// GetDirectoryProfile returns a published directory profile, if any.
func (m *Mirror) GetDirectoryProfile(ctx context.Context, scope domain.Scope) (*domain.Card, error) {
	query := `SELECT first_name, last_name, title, company, email, twitter, linkedin
		FROM directory_profiles WHERE event_id = ? AND user_id = ?`

	card := domain.Card{ID: scope.UserID}
	err := m.db.QueryRowContext(ctx, query, scope.EventID, scope.UserID).Scan(
		&card.FirstName, &card.LastName, &card.Title, &card.Company,
		&card.Email, &card.Twitter, &card.LinkedIn,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get directory profile: %w", err)
	}
	return &card, nil
}

// SetDirectoryProfile upserts a published directory profile.
func (m *Mirror) SetDirectoryProfile(ctx context.Context, scope domain.Scope, card *domain.Card) error {
	query := `
		INSERT INTO directory_profiles (event_id, user_id, first_name, last_name, title, company, email, twitter, linkedin, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id, user_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			title = excluded.title,
			company = excluded.company,
			email = excluded.email,
			twitter = excluded.twitter,
			linkedin = excluded.linkedin,
			updated_at = excluded.updated_at`

	_, err := m.db.ExecContext(ctx, query,
		scope.EventID, scope.UserID,
		card.FirstName, card.LastName, card.Title, card.Company,
		card.Email, card.Twitter, card.LinkedIn,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("set directory profile: %w", err)
	}
	return nil
}
