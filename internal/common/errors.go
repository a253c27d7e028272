// Package common defines shared constants and sentinel errors used across
// the asset storage layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrSessionNotFound covers a resumable upload session that is missing,
	// already finalized or expired. Kept separate from ErrNotFound so callers
	// can tell a dead session from a missing asset.
	ErrSessionNotFound = errors.New("upload session not found")

	// Authorization errors (cross-owner or cross-tenant access).
	ErrForbidden = errors.New("forbidden")

	// Validation errors (non-positive size, bad chunk index, size mismatch
	// at finalize).
	ErrInvalidInput = errors.New("invalid input")

	// Transient I/O failure from either store.
	ErrStorageFailure = errors.New("storage failure")

	// ErrTransactionFailure means the metadata commit failed after the object
	// was already written; the coordinator runs compensating cleanup before
	// returning it.
	ErrTransactionFailure = errors.New("transaction failure")
)
