package chips

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rbaliyan/chips/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// AddressKind classifies a destination.
type AddressKind int

const (
	AddressInvalid AddressKind = iota
	AddressEmail
	AddressPhone
)

// ClassifyAddress reports whether text is an email address or an E.164
// phone number. Surrounding whitespace is ignored.
func ClassifyAddress(text string) AddressKind {
	text = strings.TrimSpace(text)
	if text == "" {
		return AddressInvalid
	}
	if validate.Var(text, "email") == nil {
		return AddressEmail
	}
	if validate.Var(text, "e164") == nil {
		return AddressPhone
	}
	return AddressInvalid
}

// IsValidAddress reports whether text can stand as a fake entry.
func IsValidAddress(text string) bool {
	return ClassifyAddress(text) != AddressInvalid
}

// validateAddress returns a *ValidationError wrapping ErrInvalidAddress.
func validateAddress(field, text string) error {
	if IsValidAddress(text) {
		return nil
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("%q is not an email address or E.164 phone number", text),
		Err:     ErrInvalidAddress,
	}
}

// normalizeQuery trims the query and enforces the length limit.
func normalizeQuery(query string, maxLen int) (string, error) {
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) > maxLen {
		return "", &ValidationError{
			Field:   "query",
			Message: fmt.Sprintf("exceeds %d characters", maxLen),
			Err:     ErrQueryTooLong,
		}
	}
	return q, nil
}

// validateContact checks store limits and that every destination is an address.
func validateContact(c *store.Contact) error {
	if err := c.Validate(); err != nil {
		return &ValidationError{Field: "contact", Message: strings.TrimPrefix(err.Error(), store.ErrInvalidContact.Error()+": "), Err: ErrInvalidContact}
	}
	var errs []error
	for i, d := range c.Destinations {
		if err := validateAddress(fmt.Sprintf("destinations[%d]", i), d); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidContact, errors.Join(errs...))
	}
	return nil
}
