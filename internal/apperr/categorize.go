package apperr

import (
	"context"
	"errors"
	"strings"
)

// Category is a stable label for error classification in metrics.
type Category string

// Category constants used as metric labels (storageOperationsTotal, remoteSyncTotal).
const (
	CategoryTimeout          Category = "timeout"
	CategoryNetwork          Category = "network"
	CategoryUnauthorized     Category = "unauthorized"
	CategoryInvalidPayload   Category = "invalid_payload"
	CategoryInvalidRecord    Category = "invalid_record"
	CategoryStorageDown      Category = "storage_unavailable"
	CategoryStorageOperation Category = "storage_operation"
	CategoryRemoteFetch      Category = "remote_fetch"
	CategoryRemoteFlush      Category = "remote_flush"
	CategoryUnknown          Category = "unknown"
)

// Categorize maps an error to a stable Category for metrics. Sentinels win
// over message heuristics.
func Categorize(err error) Category {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return CategoryUnauthorized
	case errors.Is(err, ErrInvalidPayload):
		return CategoryInvalidPayload
	case errors.Is(err, ErrInvalidRecord):
		return CategoryInvalidRecord
	case errors.Is(err, ErrStorageUnavailable):
		return CategoryStorageDown
	case errors.Is(err, ErrStorageOperationFailed):
		return CategoryStorageOperation
	case errors.Is(err, ErrRemoteFetchFailed):
		return CategoryRemoteFetch
	case errors.Is(err, ErrRemoteFlushFailed):
		return CategoryRemoteFlush
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTimeout
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return CategoryTimeout
	}
	if strings.Contains(errStr, "network") || strings.Contains(errStr, "connection") {
		return CategoryNetwork
	}
	return CategoryUnknown
}
