package ir

import "errors"

// Repository sentinel errors. Implementations wrap these so callers can
// branch with errors.Is regardless of the backing store.
var (
	// ErrConflict reports an optimistic-concurrency failure: the record was
	// modified since it was read.
	ErrConflict = errors.New("resource version conflict")

	// ErrNotFound reports that the addressed record does not exist.
	ErrNotFound = errors.New("not found")
)
