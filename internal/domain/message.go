package domain

import "time"

// ShareMessage is a pending reciprocal card delivery sitting in a
// recipient's inbox. It is a delivery mechanism, not durable data: the
// consumer deletes it as soon as it has been processed once, whether or not
// the contained card was accepted.
type ShareMessage struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Card        Card      `json:"card"`
	CreatedAt   time.Time `json:"created_at"`
}
