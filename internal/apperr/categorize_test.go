package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// TestCategorize verifies that Categorize maps sentinel errors, wrapped errors,
// and message-based heuristics to stable metric labels.
func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, ""},
		{"unauthorized", ErrUnauthorized, CategoryUnauthorized},
		{"wrapped invalid payload", fmt.Errorf("record 3: %w", ErrInvalidPayload), CategoryInvalidPayload},
		{"invalid record", fmt.Errorf("insert: %w", ErrInvalidRecord), CategoryInvalidRecord},
		{"storage unavailable", fmt.Errorf("load: %w", ErrStorageUnavailable), CategoryStorageDown},
		{"storage operation", fmt.Errorf("count: %w", ErrStorageOperationFailed), CategoryStorageOperation},
		{"remote fetch", fmt.Errorf("%w: not reachable", ErrRemoteFetchFailed), CategoryRemoteFetch},
		{"remote flush", fmt.Errorf("%w: denied", ErrRemoteFlushFailed), CategoryRemoteFlush},
		{"deadline", context.DeadlineExceeded, CategoryTimeout},
		{"canceled", context.Canceled, CategoryTimeout},
		{"timeout in message", errors.New("i/o timeout"), CategoryTimeout},
		{"connection in message", errors.New("connection refused"), CategoryNetwork},
		{"unknown", errors.New("something else"), CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.err); got != tt.want {
				t.Errorf("Categorize() = %v, want %v", got, tt.want)
			}
		})
	}
}
