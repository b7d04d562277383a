package errors

import (
	stdErrors "errors"
	"fmt"
)

// NotConfiguredError means a required credential or target is missing. It is
// returned before any network call is made.
type NotConfiguredError struct {
	Setting string
	Hint    string
}

func (e *NotConfiguredError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s is not configured (%s)", e.Setting, e.Hint)
	}
	return fmt.Sprintf("%s is not configured", e.Setting)
}

// NewNotConfiguredError creates a NotConfiguredError for a config key.
func NewNotConfiguredError(setting, hint string) *NotConfiguredError {
	return &NotConfiguredError{Setting: setting, Hint: hint}
}

// IsNotConfiguredError checks if error is a NotConfiguredError
func IsNotConfiguredError(err error) bool {
	var cfgErr *NotConfiguredError
	return stdErrors.As(err, &cfgErr)
}
