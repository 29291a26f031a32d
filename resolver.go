package chips

import (
	"context"

	"github.com/rbaliyan/chips/store"
)

// ContactResolver finds the contacts behind typed text.
// Implementations should be safe for concurrent use.
//
// Example use cases:
//   - Suggest contacts while the user types in a recipient field
//   - Turn a pasted address back into a known contact
type ContactResolver interface {
	// Search returns up to limit contacts whose display name words or
	// destinations start with query, case-insensitively, ordered by
	// display name then ID.
	Search(ctx context.Context, query string, limit int) ([]*store.Contact, error)

	// Lookup returns the contact owning destination.
	// Returns store.ErrNotFound if no contact has it.
	Lookup(ctx context.Context, destination string) (*store.Contact, error)
}

// storeResolver resolves against a ContactStore.
type storeResolver struct {
	store store.ContactStore
}

func (r storeResolver) Search(ctx context.Context, query string, limit int) ([]*store.Contact, error) {
	return r.store.SearchContacts(ctx, query, limit)
}

func (r storeResolver) Lookup(ctx context.Context, destination string) (*store.Contact, error) {
	return r.store.FindByDestination(ctx, destination)
}
