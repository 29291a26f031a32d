package store

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Contact limits.
const (
	MaxDisplayNameLength = 256
	MaxDestinations      = 32
	MaxDestinationLength = 320 // RFC 3696 errata: 64 local + @ + 255 domain
)

// Contact is one person in a contact directory.
// The first destination is the primary one and is shown on the top-level entry;
// the rest become second-level entries.
type Contact struct {
	ID                int64
	DisplayName       string
	Destinations      []string
	PhotoThumbnailURI string
	UpdatedAt         time.Time
}

// Clone returns a deep copy of the contact.
func (c *Contact) Clone() *Contact {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Destinations = slices.Clone(c.Destinations)
	return &clone
}

// PrimaryDestination returns the first destination, or "" if there is none.
func (c *Contact) PrimaryDestination() string {
	if len(c.Destinations) == 0 {
		return ""
	}
	return c.Destinations[0]
}

// Validate checks the contact against the store limits.
// Errors wrap ErrInvalidContact.
func (c *Contact) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil contact", ErrInvalidContact)
	}
	if c.ID < 0 {
		return fmt.Errorf("%w: negative id %d", ErrInvalidContact, c.ID)
	}
	if len(c.DisplayName) > MaxDisplayNameLength {
		return fmt.Errorf("%w: display name exceeds %d bytes", ErrInvalidContact, MaxDisplayNameLength)
	}
	if len(c.Destinations) == 0 {
		return fmt.Errorf("%w: no destinations", ErrInvalidContact)
	}
	if len(c.Destinations) > MaxDestinations {
		return fmt.Errorf("%w: more than %d destinations", ErrInvalidContact, MaxDestinations)
	}
	seen := make(map[string]struct{}, len(c.Destinations))
	for _, d := range c.Destinations {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("%w: empty destination", ErrInvalidContact)
		}
		if len(d) > MaxDestinationLength {
			return fmt.Errorf("%w: destination exceeds %d bytes", ErrInvalidContact, MaxDestinationLength)
		}
		key := NormalizeDestination(d)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate destination %q", ErrInvalidContact, d)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// NormalizeDestination returns the comparison key for a destination.
func NormalizeDestination(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}

// MatchesQuery reports whether the contact matches an auto-complete query:
// any word of the display name, or any destination, starts with the query.
// The comparison is case-insensitive. An empty query matches nothing.
func (c *Contact) MatchesQuery(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	name := strings.ToLower(c.DisplayName)
	if strings.HasPrefix(name, q) {
		return true
	}
	for _, word := range strings.Fields(name) {
		if strings.HasPrefix(word, q) {
			return true
		}
	}
	for _, d := range c.Destinations {
		if strings.HasPrefix(NormalizeDestination(d), q) {
			return true
		}
	}
	return false
}

// SortContacts orders contacts by display name (case-insensitive), then ID.
func SortContacts(contacts []*Contact) {
	slices.SortStableFunc(contacts, func(a, b *Contact) int {
		if c := strings.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName)); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
