package store

import "errors"

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotActive is returned when mutating a session that already ended.
	ErrNotActive = errors.New("session is not active")
	// ErrDuplicateAnswer is returned when an answer for the same step was
	// already recorded.
	ErrDuplicateAnswer = errors.New("answer already recorded for this step")
	// ErrInvariant is returned when a write would break a session invariant.
	ErrInvariant = errors.New("session invariant violated")
)
