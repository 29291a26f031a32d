// Package store provides interfaces and types for contact directories and
// photo storage. Implementations are in store/memory, store/postgres,
// store/mongo and store/photo/* subpackages.
//
// Contact stores back the auto-complete suggestions; photo stores hold the
// thumbnail images that entries reference by URI. Both are expected to be
// shared across goroutines, so every implementation must be safe for
// concurrent use and must rely on the backend's own atomicity (row-level
// upserts, single-document writes) rather than external locks.
package store

import (
	"context"
	"io"
)

// ContactStore is the storage interface for a contact directory.
type ContactStore interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	// SaveContact inserts a contact when its ID is zero, or replaces the
	// stored contact with the same ID otherwise. The returned contact carries
	// the assigned ID and update time.
	SaveContact(ctx context.Context, c *Contact) (*Contact, error)

	// GetContact returns the contact with the given ID.
	// Returns ErrNotFound if no such contact exists.
	GetContact(ctx context.Context, id int64) (*Contact, error)

	// DeleteContact removes a contact. Returns ErrNotFound if it does not exist.
	DeleteContact(ctx context.Context, id int64) error

	// SearchContacts returns up to limit contacts whose display name (any
	// word of it) or any destination starts with query, case-insensitively.
	// Results are ordered by display name, then ID.
	SearchContacts(ctx context.Context, query string, limit int) ([]*Contact, error)

	// FindByDestination returns the contact owning the destination,
	// compared case-insensitively. Returns ErrNotFound when nobody owns it.
	FindByDestination(ctx context.Context, destination string) (*Contact, error)
}

// PhotoStore handles thumbnail file storage.
// Implementations can support S3, GCS, memory, or decorate another store.
type PhotoStore interface {
	// Upload stores content and returns a URI for later retrieval.
	Upload(ctx context.Context, filename, contentType string, content io.Reader) (uri string, err error)

	// Load returns a reader for the photo content.
	// Caller is responsible for closing the reader.
	// Returns ErrNotFound if nothing is stored under uri.
	Load(ctx context.Context, uri string) (io.ReadCloser, error)

	// Delete removes the photo file from storage.
	Delete(ctx context.Context, uri string) error
}
