// Package objectstore holds the remote copies of the backing store file.
package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist remotely.
var ErrNotFound = errors.New("object not found")

// ObjectStore is a durable key/value blob store. Put overwrites.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	// Ping checks reachability. Used by the health handler.
	Ping(ctx context.Context) error
	// Name identifies the backend in logs and metrics ("s3", "filesystem").
	Name() string
}
