package errors

import (
	stdErrors "errors"
	"fmt"
)

// TransientError wraps a network failure, timeout or 5xx response.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a transient failure of op.
func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

// IsTransientError checks if error is a TransientError
func IsTransientError(err error) bool {
	var transient *TransientError
	return stdErrors.As(err, &transient)
}
