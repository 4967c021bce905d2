package store

import "errors"

var (
	// ErrNotFound is returned when no record exists for the given identity.
	ErrNotFound = errors.New("store: record not found")

	// ErrStorageUnavailable is returned when the underlying medium cannot
	// be opened or a write exhausts its retry budget.
	ErrStorageUnavailable = errors.New("store: storage unavailable")

	// ErrIntegrity is returned when decryption/authentication of a stored
	// record fails. List reads skip such records and report the error
	// alongside the partial result.
	ErrIntegrity = errors.New("store: record integrity check failed")

	// ErrImmutable is returned when a put would mutate an existing message
	// record. Content changes must go through the edit-history tracker.
	ErrImmutable = errors.New("store: record is immutable")
)
