package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrStore             = errors.New("store unavailable")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAmbiguousContact  = errors.New("contact matches more than one visitor")
	ErrEventNotApproved  = errors.New("event is not approved")
	ErrForbidden         = errors.New("forbidden")
)

// ValidationError rejects input before anything is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
