package store

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a missing or unauthorized resource lookup.
var ErrNotFound = errors.New("record not found")

// ErrNoDocument is returned by a Backend when nothing has been persisted yet.
var ErrNoDocument = errors.New("no persisted document")

// ErrNoChange may be returned from an Update callback to end the cycle
// without writing the dataset back.
var ErrNoChange = errors.New("no change")

// CorruptError reports a persisted document that could not be read or parsed.
type CorruptError struct {
	Source string
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt document %s: %v", e.Source, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// WriteError reports a failure to persist the dataset.
type WriteError struct {
	Source string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write document %s: %v", e.Source, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsStoreFailure reports whether err originates from persistence I/O rather
// than from business rules.
func IsStoreFailure(err error) bool {
	var corrupt *CorruptError
	var write *WriteError
	return errors.As(err, &corrupt) || errors.As(err, &write)
}
