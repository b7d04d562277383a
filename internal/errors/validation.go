package errors

import (
	stdErrors "errors"
	"fmt"
)

// ValidationError is raised by a mutation before any write when its input is
// malformed or inconsistent with the current collection.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError checks if error is a ValidationError
func IsValidationError(err error) bool {
	var validation *ValidationError
	return stdErrors.As(err, &validation)
}
