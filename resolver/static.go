// Package resolver provides ContactResolver implementations.
package resolver

import (
	"context"

	"github.com/rbaliyan/chips"
	"github.com/rbaliyan/chips/store"
)

// Static is a slice-backed ContactResolver for testing and simple deployments.
// Safe for concurrent use (read-only after creation).
type Static struct {
	contacts []*store.Contact
	byDest   map[string]*store.Contact
}

var _ chips.ContactResolver = (*Static)(nil)

// NewStatic creates a Static resolver. Contacts are copied to prevent
// external mutation; the first contact listing a destination owns it.
func NewStatic(contacts []*store.Contact) *Static {
	s := &Static{
		contacts: make([]*store.Contact, 0, len(contacts)),
		byDest:   make(map[string]*store.Contact),
	}
	for _, c := range contacts {
		if c == nil {
			continue
		}
		c = c.Clone()
		s.contacts = append(s.contacts, c)
		for _, d := range c.Destinations {
			key := store.NormalizeDestination(d)
			if _, ok := s.byDest[key]; !ok && key != "" {
				s.byDest[key] = c
			}
		}
	}
	store.SortContacts(s.contacts)
	return s
}

// Search returns up to limit matching contacts. A limit <= 0 means no limit.
func (s *Static) Search(_ context.Context, query string, limit int) ([]*store.Contact, error) {
	var result []*store.Contact
	for _, c := range s.contacts {
		if limit > 0 && len(result) >= limit {
			break
		}
		if c.MatchesQuery(query) {
			result = append(result, c.Clone())
		}
	}
	return result, nil
}

// Lookup returns the contact owning destination.
func (s *Static) Lookup(_ context.Context, destination string) (*store.Contact, error) {
	c, ok := s.byDest[store.NormalizeDestination(destination)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c.Clone(), nil
}
