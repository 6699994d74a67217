// Package sse implements Server-Sent Events for pushing exchange updates to
// connected clients.
package sse

import (
	"time"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

// SSE is server-to-client only. Scans and edits arrive over the REST API;
// the stream exists so a second device, or the recipient of a reciprocal
// share, sees the change without polling.

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventCardAdded represents a card being saved into a contact list.
	EventCardAdded EventType = "card.added"
	// EventCardUpdated represents an edit to a saved card.
	EventCardUpdated EventType = "card.updated"
	// EventCardDeleted represents a card being removed from a contact list.
	EventCardDeleted EventType = "card.deleted"

	// EventOwnCardUpdated represents an edit to the user's own card.
	EventOwnCardUpdated EventType = "own_card.updated"

	// EventMessageReceived represents a reciprocal share landing in the
	// user's inbox.
	EventMessageReceived EventType = "message.received"

	// EventPreferenceUpdated represents a change to the send-on-scan
	// preference, so other devices stay in agreement.
	EventPreferenceUpdated EventType = "preference.updated"

	// EventConnectionTally represents a change to the event-wide connection
	// count. Only sent to admin users.
	EventConnectionTally EventType = "connections.tally"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// Filtering field for multi-user support. When set, the event is only
	// delivered to clients authenticated as that user. Empty string means
	// "broadcast to all".
	UserID string `json:"-"`
}

// CardEventData is the data payload for card events.
type CardEventData struct {
	Card *domain.Card `json:"card"`
}

// CardDeletedEventData is the data payload for card delete events.
type CardDeletedEventData struct {
	DeletedAt time.Time `json:"deleted_at"`
	CardID    string    `json:"card_id"`
}

// MessageEventData is the data payload for inbox delivery events.
type MessageEventData struct {
	Message *domain.ShareMessage `json:"message"`
}

// PreferenceEventData is the data payload for preference events.
type PreferenceEventData struct {
	SendOnScan bool `json:"send_on_scan"`
}

// ConnectionTallyEventData is the data payload for tally events.
type ConnectionTallyEventData struct {
	Total int `json:"total"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewCardAddedEvent creates a card.added event targeted at one user.
func NewCardAddedEvent(userID string, card *domain.Card) Event {
	return Event{
		Type:      EventCardAdded,
		Timestamp: time.Now(),
		UserID:    userID,
		Data:      CardEventData{Card: card},
	}
}

// NewCardUpdatedEvent creates a card.updated event targeted at one user.
func NewCardUpdatedEvent(userID string, card *domain.Card) Event {
	return Event{
		Type:      EventCardUpdated,
		Timestamp: time.Now(),
		UserID:    userID,
		Data:      CardEventData{Card: card},
	}
}

// NewCardDeletedEvent creates a card.deleted event targeted at one user.
func NewCardDeletedEvent(userID, cardID string) Event {
	return Event{
		Type:      EventCardDeleted,
		Timestamp: time.Now(),
		UserID:    userID,
		Data:      CardDeletedEventData{CardID: cardID, DeletedAt: time.Now()},
	}
}

// NewOwnCardUpdatedEvent creates an own_card.updated event targeted at one user.
func NewOwnCardUpdatedEvent(userID string, card *domain.Card) Event {
	return Event{
		Type:      EventOwnCardUpdated,
		Timestamp: time.Now(),
		UserID:    userID,
		Data:      CardEventData{Card: card},
	}
}

// NewMessageReceivedEvent creates a message.received event for the recipient.
func NewMessageReceivedEvent(msg *domain.ShareMessage) Event {
	return Event{
		Type:      EventMessageReceived,
		Timestamp: time.Now(),
		UserID:    msg.RecipientID,
		Data:      MessageEventData{Message: msg},
	}
}

// NewPreferenceUpdatedEvent creates a preference.updated event targeted at one user.
func NewPreferenceUpdatedEvent(userID string, sendOnScan bool) Event {
	return Event{
		Type:      EventPreferenceUpdated,
		Timestamp: time.Now(),
		UserID:    userID,
		Data:      PreferenceEventData{SendOnScan: sendOnScan},
	}
}

// NewConnectionTallyEvent creates a connections.tally event for admins.
func NewConnectionTallyEvent(total int) Event {
	return Event{
		Type:      EventConnectionTally,
		Timestamp: time.Now(),
		Data:      ConnectionTallyEventData{Total: total},
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Timestamp: time.Now(),
		Data:      HeartbeatEventData{ServerTime: time.Now()},
	}
}
