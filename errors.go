package chips

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbaliyan/chips/retry"
	"github.com/rbaliyan/chips/store"
)

// Sentinel errors for the chips package.
// Use errors.Is() to check for these errors.
//
// Where a store-level error exists, the chips error wraps it, so
// errors.Is(err, chips.ErrNotFound) also matches store.ErrNotFound.
var (
	// ErrNotFound is returned when a contact or photo cannot be found.
	// Wraps store.ErrNotFound for consistent error checking.
	ErrNotFound = fmt.Errorf("chips: %w", store.ErrNotFound)

	// ErrNotConnected is returned when operations are attempted before Connect().
	// Wraps store.ErrNotConnected for consistent error checking.
	ErrNotConnected = fmt.Errorf("chips: %w", store.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	// Wraps store.ErrAlreadyConnected for consistent error checking.
	ErrAlreadyConnected = fmt.Errorf("chips: %w", store.ErrAlreadyConnected)

	// ErrInvalidContact is returned for contact validation failures.
	// Wraps store.ErrInvalidContact for consistent error checking.
	ErrInvalidContact = fmt.Errorf("chips: %w", store.ErrInvalidContact)

	// ErrResolverRequired is returned when neither a resolver nor a contact store is configured.
	ErrResolverRequired = errors.New("chips: resolver or contact store is required")

	// ErrContactStoreRequired is returned by write operations when no contact store is configured.
	ErrContactStoreRequired = errors.New("chips: contact store is required")

	// ErrPhotoStoreNotConfigured is returned when a photo operation needs a photo store.
	ErrPhotoStoreNotConfigured = errors.New("chips: photo store not configured")

	// ErrInvalidAddress is returned when text is neither an email address nor an E.164 phone number.
	ErrInvalidAddress = errors.New("chips: invalid address")

	// ErrQueryTooLong is returned when a suggestion query exceeds the maximum length.
	ErrQueryTooLong = errors.New("chips: query too long")

	// ErrPhotoTooLarge is returned when a photo exceeds the size limit.
	ErrPhotoTooLarge = errors.New("chips: photo too large")

	// ErrInvalidPhoto is returned when photo bytes are not a recognized image.
	ErrInvalidPhoto = errors.New("chips: invalid photo")
)

// PhotoFetchError describes a failed photo load for one entry.
// The entry's photo slot is left untouched when this error is returned.
type PhotoFetchError struct {
	ContactID   int64
	Destination string
	URI         string
	Attempts    int
	Err         error
}

func (e *PhotoFetchError) Error() string {
	return fmt.Sprintf("chips: photo fetch failed for contact %d (%s) after %d attempt(s): %v",
		e.ContactID, e.URI, e.Attempts, e.Err)
}

func (e *PhotoFetchError) Unwrap() error {
	return e.Err
}

// IsPhotoFetchError checks if the error is a photo fetch error and returns details.
func IsPhotoFetchError(err error) (*PhotoFetchError, bool) {
	var pfe *PhotoFetchError
	if errors.As(err, &pfe) {
		return pfe, true
	}
	return nil, false
}

// ValidationError provides details about a validation failure.
type ValidationError struct {
	Field   string // The field that failed validation
	Message string // Human-readable error message
	Err     error  // Sentinel the failure maps to
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("chips: validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// EventPublishError is returned when event publishing fails but the photo was stored.
type EventPublishError struct {
	Event string // The event name (e.g., "PhotoLoaded")
	URI   string // The photo URI the event was for
	Err   error  // The underlying publish error
}

func (e *EventPublishError) Error() string {
	return fmt.Sprintf("chips: event %s publish failed for %s: %v", e.Event, e.URI, e.Err)
}

func (e *EventPublishError) Unwrap() error {
	return e.Err
}

// IsRetryableError determines if a photo load error is worth retrying.
// Missing photos, invalid URIs, bad payloads, cancellation and errors marked
// retry.Permanent are permanent. Unknown transport errors are assumed transient.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	permanent := []error{
		store.ErrNotFound,
		store.ErrInvalidURI,
		store.ErrInvalidID,
		ErrPhotoTooLarge,
		ErrInvalidPhoto,
		ErrPhotoStoreNotConfigured,
		context.Canceled,
	}
	for _, p := range permanent {
		if errors.Is(err, p) {
			return false
		}
	}
	return retry.DefaultIsRetryable(err)
}
