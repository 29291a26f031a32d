package chips

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rbaliyan/chips/retry"
	"github.com/rbaliyan/chips/store"
)

func TestSentinelsWrapStoreErrors(t *testing.T) {
	tests := []struct {
		chips error
		store error
	}{
		{ErrNotFound, store.ErrNotFound},
		{ErrNotConnected, store.ErrNotConnected},
		{ErrAlreadyConnected, store.ErrAlreadyConnected},
		{ErrInvalidContact, store.ErrInvalidContact},
	}
	for _, tt := range tests {
		if !errors.Is(tt.chips, tt.store) {
			t.Errorf("%v should match %v", tt.chips, tt.store)
		}
		if !strings.HasPrefix(tt.chips.Error(), "chips: ") {
			t.Errorf("expected chips prefix, got %q", tt.chips.Error())
		}
	}
}

func TestPhotoFetchError(t *testing.T) {
	err := &PhotoFetchError{
		ContactID:   42,
		Destination: "jane@example.com",
		URI:         "mem://photos/jane.png",
		Attempts:    3,
		Err:         store.ErrNotFound,
	}

	t.Run("Error message format", func(t *testing.T) {
		msg := err.Error()
		for _, part := range []string{"42", "mem://photos/jane.png", "3 attempt"} {
			if !strings.Contains(msg, part) {
				t.Errorf("expected error message to contain %q, got %q", part, msg)
			}
		}
	})

	t.Run("Unwrap", func(t *testing.T) {
		if !errors.Is(err, store.ErrNotFound) {
			t.Error("expected PhotoFetchError to unwrap to its cause")
		}
	})

	t.Run("IsPhotoFetchError", func(t *testing.T) {
		wrapped := fmt.Errorf("loading: %w", err)
		got, ok := IsPhotoFetchError(wrapped)
		if !ok || got.ContactID != 42 {
			t.Errorf("expected to find the fetch error, got %v", got)
		}
		if _, ok := IsPhotoFetchError(errors.New("other")); ok {
			t.Error("unexpected match for a plain error")
		}
	})
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "address", Message: "is empty", Err: ErrInvalidAddress}
	if !errors.Is(err, ErrInvalidAddress) {
		t.Error("expected ValidationError to unwrap to its sentinel")
	}
	if !strings.Contains(err.Error(), "address") || !strings.Contains(err.Error(), "is empty") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestEventPublishError(t *testing.T) {
	cause := errors.New("transport down")
	err := &EventPublishError{Event: "PhotoLoaded", URI: "mem://photos/a.png", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("expected EventPublishError to unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "PhotoLoaded") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", fmt.Errorf("load: %w", store.ErrNotFound), false},
		{"invalid uri", store.ErrInvalidURI, false},
		{"too large", ErrPhotoTooLarge, false},
		{"invalid photo", ErrInvalidPhoto, false},
		{"no photo store", ErrPhotoStoreNotConfigured, false},
		{"canceled", context.Canceled, false},
		{"permanent", retry.Permanent(errors.New("x")), false},
		{"transport", errors.New("connection reset"), true},
		{"deadline", context.DeadlineExceeded, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
