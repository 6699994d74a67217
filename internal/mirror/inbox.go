package mirror

import (
	"context"
	"fmt"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

// PushMessage appends a reciprocal card delivery to the recipient's inbox.
func (m *Mirror) PushMessage(ctx context.Context, eventID string, msg *domain.ShareMessage) error {
	query := `
		INSERT INTO inbox_messages (id, event_id, recipient_id, sender_id, card_id, ` + cardColumns + `, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	args := append(
		[]any{msg.ID, eventID, msg.RecipientID, msg.SenderID, msg.Card.ID},
		cardValues(&msg.Card)...,
	)
	args = append(args, formatTime(msg.CreatedAt))

	if _, err := m.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

// ListMessages returns a recipient's pending messages in arrival order.
func (m *Mirror) ListMessages(ctx context.Context, eventID, recipientID string) ([]*domain.ShareMessage, error) {
	query := `SELECT id, sender_id, card_id, ` + cardColumns + `, created_at
		FROM inbox_messages WHERE event_id = ? AND recipient_id = ? ORDER BY seq`

	rows, err := m.db.QueryContext(ctx, query, eventID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.ShareMessage
	for rows.Next() {
		msg := &domain.ShareMessage{RecipientID: recipientID}
		var createdAt string

		dests := append([]any{&msg.ID, &msg.SenderID, &msg.Card.ID}, cardDests(&msg.Card)...)
		dests = append(dests, &createdAt)
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		msg.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse message time: %w", err)
		}

		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// DeleteMessage removes a processed message. Deleting an already deleted
// message is not an error, so a crashed consumer can safely retry.
func (m *Mirror) DeleteMessage(ctx context.Context, messageID string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM inbox_messages WHERE id = ?`, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
