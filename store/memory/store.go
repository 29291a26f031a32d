// Package memory provides in-memory ContactStore and PhotoStore
// implementations for testing.
// These stores are not suitable for production use - data is not persisted.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/chips/store"
)

// Store implements store.ContactStore with in-memory storage.
// Thread-safe for concurrent use. Not suitable for production.
type Store struct {
	mu        sync.RWMutex
	contacts  map[int64]*store.Contact
	nextID    atomic.Int64
	connected int32
}

var _ store.ContactStore = (*Store)(nil)

// New creates a new in-memory contact store.
func New() *Store {
	return &Store{contacts: make(map[int64]*store.Contact)}
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// SaveContact inserts a contact with a zero ID or replaces an existing one.
func (s *Store) SaveContact(_ context.Context, c *store.Contact) (*store.Contact, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	saved := c.Clone()
	saved.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if saved.ID == 0 {
		saved.ID = s.nextID.Add(1)
	} else if _, ok := s.contacts[saved.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.contacts[saved.ID] = saved
	return saved.Clone(), nil
}

// GetContact returns a copy of the contact with the given ID.
func (s *Store) GetContact(_ context.Context, id int64) (*store.Contact, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, store.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contacts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c.Clone(), nil
}

// DeleteContact removes a contact.
func (s *Store) DeleteContact(_ context.Context, id int64) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id <= 0 {
		return store.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contacts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.contacts, id)
	return nil
}

// SearchContacts returns matching contacts ordered by display name, then ID.
// A limit of zero or less returns every match.
func (s *Store) SearchContacts(_ context.Context, query string, limit int) ([]*store.Contact, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var matches []*store.Contact
	for _, c := range s.contacts {
		if c.MatchesQuery(query) {
			matches = append(matches, c.Clone())
		}
	}
	s.mu.RUnlock()

	store.SortContacts(matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// FindByDestination returns the contact owning destination.
// When several contacts share it, the oldest (lowest ID) wins.
func (s *Store) FindByDestination(_ context.Context, destination string) (*store.Contact, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	key := store.NormalizeDestination(destination)
	if key == "" {
		return nil, store.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *store.Contact
	for _, c := range s.contacts {
		if found != nil && c.ID > found.ID {
			continue
		}
		for _, d := range c.Destinations {
			if store.NormalizeDestination(d) == key {
				found = c
				break
			}
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found.Clone(), nil
}

// Len returns the number of stored contacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contacts)
}
