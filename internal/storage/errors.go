package storage

import "errors"

var (
	// ErrNotFound means no action or snapshot matched the lookup key.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey means the action ID, or the snapshot's sale address and
	// timestamp, is already stored. Records are never overwritten.
	ErrDuplicateKey = errors.New("record already stored")

	// ErrInvalidInput means a record failed validation before reaching the backend.
	ErrInvalidInput = errors.New("invalid record")
)
