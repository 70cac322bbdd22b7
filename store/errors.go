package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced conversation or message id does
// not exist. gorm.ErrRecordNotFound never leaks past this package.
var ErrNotFound = errors.New("record not found")

// ValidationError rejects malformed input before it touches storage. Handlers
// render Field and Reason directly as a field-level message.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
