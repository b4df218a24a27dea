package domain

import "errors"

var (
	// ErrSerializationFailure wraps SQLSTATE 40001. Safe to retry once
	// at the HTTP boundary; never retried inside the core.
	ErrSerializationFailure = errors.New("serialization failure")

	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("invalid input")
	ErrSeatConflict        = errors.New("seat already reserved")
	ErrMatchMismatch       = errors.New("seat does not belong to match")
	ErrQuotaExceeded       = errors.New("seat quota exceeded for match")
	ErrAlreadyCancelled    = errors.New("reservation already cancelled")
	ErrCancelLimitExceeded = errors.New("cancel limit exceeded for match")
)
