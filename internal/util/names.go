// Package util holds small shared helpers.
package util

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

// NameCollator compares contact names lexicographically using a proper
// string collation rather than byte order, so accented names sort where a
// person would expect them.
type NameCollator struct {
	c *collate.Collator
}

// NewNameCollator builds a case-insensitive English collator.
func NewNameCollator() *NameCollator {
	return &NameCollator{
		c: collate.New(language.English, collate.IgnoreCase),
	}
}

// Less orders two cards by last name, then first name.
func (nc *NameCollator) Less(a, b *domain.Card) bool {
	if cmp := nc.c.CompareString(a.LastName, b.LastName); cmp != 0 {
		return cmp < 0
	}
	return nc.c.CompareString(a.FirstName, b.FirstName) < 0
}

// SortByLastName sorts a contact list in place by last name, then first name.
func (nc *NameCollator) SortByLastName(list domain.ContactList) {
	sort.SliceStable(list, func(i, j int) bool {
		return nc.Less(&list[i], &list[j])
	})
}
