package repository

import "errors"

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("record not found")
	// ErrLockNotAcquired is returned when a lock is held elsewhere past the caller's deadline.
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("unique constraint conflict")
)
