// Package apperr defines the error taxonomy shared by the store, the sync
// manager and the HTTP layer. Callers wrap these with fmt.Errorf("...: %w")
// and classify with errors.Is.
package apperr

import "errors"

var (
	// ErrUnauthorized is returned when the ingestion credential does not match.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidPayload is returned for malformed or incomplete ingestion input.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrInvalidRecord is returned when the store rejects a row on insert
	// (constraint violation). The whole replace is aborted.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrStorageUnavailable is returned when no connection to the backing store could be obtained.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrStorageOperationFailed is returned when a query, insert or delete fails after connecting.
	ErrStorageOperationFailed = errors.New("storage operation failed")

	// ErrRemoteFetchFailed is returned when cold-start download fails. Never fatal.
	ErrRemoteFetchFailed = errors.New("remote fetch failed")

	// ErrRemoteFlushFailed is returned when uploading the backing file fails after a successful write.
	ErrRemoteFlushFailed = errors.New("remote flush failed")
)
