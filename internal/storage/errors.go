package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrLimitReached is returned when an owner already holds the maximum number
// of pending reminders.
var ErrLimitReached = errors.New("pending reminder limit reached")

// ErrDuplicate is returned when an insert reuses an existing ID.
var ErrDuplicate = errors.New("duplicate id")

// MalformedRecordError reports a persisted row that no longer decodes. The
// row is skipped; the rest of the store stays usable.
type MalformedRecordError struct {
	Table string
	ID    string
	Field string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s record %s: field %s: %v", e.Table, e.ID, e.Field, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// StoreIOError wraps a failure to read or write the backing database.
// Corrupt is set when the file exists but is not a usable database.
type StoreIOError struct {
	Op      string
	Path    string
	Corrupt bool
	Err     error
}

func (e *StoreIOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreIOError) Unwrap() error { return e.Err }
