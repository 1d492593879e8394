package store

import "errors"

var (
	// ErrConflict is returned when a write would violate the no-overlap
	// guarantee for a provider's active appointments.
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")
	// ErrTransient wraps retryable backend failures such as serialization
	// aborts, deadlocks and lock-wait timeouts.
	ErrTransient = errors.New("transient storage failure")
)
