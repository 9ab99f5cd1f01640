package repository

import "errors"

var (
	// ErrConflict is returned when an optimistic status check matched no row:
	// the position changed underneath the caller.
	ErrConflict = errors.New("repository: concurrent modification")

	// ErrNotFound is returned by lookups that require the row to exist.
	ErrNotFound = errors.New("repository: not found")
)
