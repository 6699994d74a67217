// Package search provides full-text contact search using Bleve.
// Saved cards are indexed per owner so an attendee can find "that drummer
// from the Tuesday mixer" by name, company, or the notes they typed.
package search

import (
	"strings"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

// ContactDocument is the document structure for the Bleve index.
//
// Design note: the owner scope is denormalized into every document so a
// single term query restricts results to one attendee's saved cards. The
// index is shared across all scopes on the server.
type ContactDocument struct {
	// Identity
	ID    string `json:"id"`    // Composite: {event}/{owner}/{card}
	Owner string `json:"owner"` // Scope discriminator: {event}/{owner}

	// Searchable text
	Name    string `json:"name"` // "First Last"
	Title   string `json:"title,omitempty"`
	Company string `json:"company,omitempty"`
	Notes   string `json:"notes,omitempty"`

	// Stored for result display, not analyzed
	CardID string `json:"card_id"`
	Email  string `json:"email,omitempty"`
}

// DocumentID builds the composite index key for a card in a scope.
func DocumentID(scope domain.Scope, cardID string) string {
	return scope.String() + "/" + cardID
}

// ToMap converts the document to a map with lowercase field names.
// Bleve by default uses Go struct field names (capitalized), but our
// mapping uses lowercase names, so we convert explicitly.
func (d *ContactDocument) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":      d.ID,
		"owner":   d.Owner,
		"name":    d.Name,
		"card_id": d.CardID,
	}

	// Optional fields - only add if non-empty
	if d.Title != "" {
		m["title"] = d.Title
	}
	if d.Company != "" {
		m["company"] = d.Company
	}
	if d.Notes != "" {
		m["notes"] = d.Notes
	}
	if d.Email != "" {
		m["email"] = d.Email
	}

	return m
}

// CardToDocument converts a saved card to a ContactDocument for an owner scope.
func CardToDocument(scope domain.Scope, card *domain.Card) *ContactDocument {
	return &ContactDocument{
		ID:      DocumentID(scope, card.ID),
		Owner:   scope.String(),
		Name:    strings.TrimSpace(card.FirstName + " " + card.LastName),
		Title:   card.Title,
		Company: card.Company,
		Notes:   card.Notes,
		CardID:  card.ID,
		Email:   card.Email,
	}
}
