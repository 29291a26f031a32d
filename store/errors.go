package store

import "errors"

// Sentinel errors for the store package.
var (
	// ErrNotFound is returned when a contact or photo cannot be found.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidID is returned when an invalid ID is provided.
	ErrInvalidID = errors.New("store: invalid id")

	// ErrInvalidContact is returned when a contact fails validation.
	ErrInvalidContact = errors.New("store: invalid contact")

	// ErrInvalidURI is returned when a photo URI does not belong to the store.
	ErrInvalidURI = errors.New("store: invalid uri")

	// ErrNotConnected is returned when operations are attempted before Connect().
	ErrNotConnected = errors.New("store: not connected")

	// ErrAlreadyConnected is returned when Connect() is called twice.
	ErrAlreadyConnected = errors.New("store: already connected")
)

// Error checking helpers.

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidID(err error) bool {
	return errors.Is(err, ErrInvalidID)
}

func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
