package backlog

import (
	"bytes"
	"encoding/json"
)

type fieldState uint8

const (
	unfetched fieldState = iota
	absent
	present
)

// Field is a tri-state enrichment value: not yet fetched, fetched and known
// to be absent, or present.
//
// JSON encoding relies on the `omitzero` tag option: an unfetched field is
// omitted, a known-absent field is encoded as null.
type Field[T any] struct {
	value T
	state fieldState
}

// Known returns a present field holding v.
func Known[T any](v T) Field[T] {
	return Field[T]{value: v, state: present}
}

// Absent returns a field that was fetched but has no value.
func Absent[T any]() Field[T] {
	return Field[T]{state: absent}
}

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.state == present
}

// Value returns the value, or the zero value if the field is not present.
func (f Field[T]) Value() T {
	return f.value
}

// Present reports whether the field holds a value.
func (f Field[T]) Present() bool {
	return f.state == present
}

// Fetched reports whether the field was ever filled in, present or absent.
func (f Field[T]) Fetched() bool {
	return f.state != unfetched
}

// IsZero reports whether the field was never fetched.
func (f Field[T]) IsZero() bool {
	return f.state == unfetched
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.state != present {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Absent[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Known(v)
	return nil
}
