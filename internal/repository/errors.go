package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a conditional write lost against the current
	// state of the record (wrong assessment status or stale revision).
	ErrConflict = errors.New("repository: state conflict")
)
