package errors

import (
	stdErrors "errors"
	"fmt"
)

// NotFoundError represents a missing remote object or record.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.What)
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(what string) *NotFoundError {
	return &NotFoundError{What: what}
}

// IsNotFoundError checks if error is a NotFoundError
func IsNotFoundError(err error) bool {
	var notFound *NotFoundError
	return stdErrors.As(err, &notFound)
}
