// Package domain contains the core types for the CardLink contact exchange.
package domain

import "strings"

// Card is a contact's identity and profile fields as exchanged at an event.
// A card is only admitted into a contact list when both name fields are set;
// everything else is optional.
type Card struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	Title          string `json:"title,omitempty"`
	Company        string `json:"company,omitempty"`
	Email          string `json:"email,omitempty"`
	Mobile         string `json:"mobile,omitempty"`
	Twitter        string `json:"twitter,omitempty"`
	LinkedIn       string `json:"linkedin,omitempty"`
	Notes          string `json:"notes,omitempty"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	AvatarBlurHash string `json:"avatar_blurhash,omitempty"`
}

// HasFullName reports whether both name fields are non-empty.
// This is the admission rule for contact lists.
func (c *Card) HasFullName() bool {
	return strings.TrimSpace(c.FirstName) != "" && strings.TrimSpace(c.LastName) != ""
}

// FullName returns "First Last" for display and export.
func (c *Card) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// FillFrom copies fields from other into any fields of c that are unset.
// Used when merging a fetched directory profile into the own card: values
// already present locally always win.
func (c *Card) FillFrom(other *Card) {
	if c.FirstName == "" {
		c.FirstName = other.FirstName
	}
	if c.LastName == "" {
		c.LastName = other.LastName
	}
	if c.Title == "" {
		c.Title = other.Title
	}
	if c.Company == "" {
		c.Company = other.Company
	}
	if c.Email == "" {
		c.Email = other.Email
	}
	if c.Twitter == "" {
		c.Twitter = other.Twitter
	}
	if c.LinkedIn == "" {
		c.LinkedIn = other.LinkedIn
	}
	if c.Mobile == "" {
		c.Mobile = other.Mobile
	}
	if c.Notes == "" {
		c.Notes = other.Notes
	}
	if c.AvatarURL == "" {
		// The blurhash belongs to the avatar, so the pair moves together
		c.AvatarURL = other.AvatarURL
		c.AvatarBlurHash = other.AvatarBlurHash
	}
}

// ContactList is an ordered sequence of cards, unique by ID.
// Insertion order is the display order prior to any client-side sort.
type ContactList []Card

// Contains reports whether a card with the given ID is already in the list.
func (l ContactList) Contains(id string) bool {
	return l.IndexOf(id) >= 0
}

// IndexOf returns the position of the card with the given ID, or -1.
func (l ContactList) IndexOf(id string) int {
	for i := range l {
		if l[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a copy of the list. Mutation operations work on copies so
// callers never observe a half-applied change.
func (l ContactList) Clone() ContactList {
	if l == nil {
		return nil
	}
	out := make(ContactList, len(l))
	copy(out, l)
	return out
}
