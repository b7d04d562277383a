package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrConflict is matched by every ConflictError via errors.Is.
var ErrConflict = stdErrors.New("conflict")

// ConflictError reports that a write lost a compare-and-swap race: the
// presented revision no longer matches the stored object, or the destination
// already holds a record with the same unique key.
type ConflictError struct {
	// Resource names what was being written (document path, table, ...)
	Resource string
	// Revision is the revision the writer presented, if any
	Revision string
	// Detail is the upstream message, if any
	Detail string
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("conflict writing %s", e.Resource)
	if e.Revision != "" {
		msg += fmt.Sprintf(" at revision %s", e.Revision)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NewConflictError creates a ConflictError for resource.
func NewConflictError(resource, revision, detail string) *ConflictError {
	return &ConflictError{Resource: resource, Revision: revision, Detail: detail}
}

// IsConflictError checks if error is a ConflictError (even when wrapped).
func IsConflictError(err error) bool {
	var conflictErr *ConflictError
	return stdErrors.As(err, &conflictErr)
}
