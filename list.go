package chips

import (
	"fmt"

	"github.com/rbaliyan/chips/store"
)

// BuildEntries lays out contacts as auto-complete rows.
//
// Each contact contributes a top-level entry for its primary destination
// followed by a SepWithinGroup and a second-level entry for every other
// destination. Consecutive contacts are divided by SepNormal. Contacts
// without destinations are skipped. A thumbnail URI that does not parse
// aborts the build.
func BuildEntries(contacts []*store.Contact) ([]Entry, error) {
	entries := make([]Entry, 0, len(contacts)*2)
	for _, c := range contacts {
		if c == nil || len(c.Destinations) == 0 {
			continue
		}
		if len(entries) > 0 {
			entries = append(entries, SepNormal)
		}

		top, err := NewTopLevelEntryString(c.DisplayName, c.Destinations[0], c.ID, c.PhotoThumbnailURI)
		if err != nil {
			return nil, fmt.Errorf("contact %d: %w", c.ID, err)
		}
		entries = append(entries, top)

		for _, dest := range c.Destinations[1:] {
			entries = append(entries, SepWithinGroup, NewSecondLevelEntry(c.DisplayName, dest, c.ID))
		}
	}
	return entries, nil
}

// Persons returns the person entries of a list, dropping separators.
func Persons(entries []Entry) []*Person {
	persons := make([]*Person, 0, len(entries))
	for _, e := range entries {
		if p, ok := e.(*Person); ok {
			persons = append(persons, p)
		}
	}
	return persons
}
