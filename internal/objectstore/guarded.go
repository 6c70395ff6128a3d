package objectstore

import (
	"context"
	"errors"
	"time"

	"github.com/kjstillabower/flight-listing-service/internal/apperr"
	"github.com/kjstillabower/flight-listing-service/internal/circuitbreaker"
	"github.com/kjstillabower/flight-listing-service/internal/observability"
)

// Guarded wraps an ObjectStore with a circuit breaker and operation metrics.
// ErrNotFound is an answer, not a failure, and never trips the breaker.
type Guarded struct {
	inner ObjectStore
	cb    *circuitbreaker.CircuitBreaker
}

// NewGuarded returns inner wrapped by cb. A nil cb only adds metrics.
func NewGuarded(inner ObjectStore, cb *circuitbreaker.CircuitBreaker) *Guarded {
	return &Guarded{inner: inner, cb: cb}
}

// IsFailure is the breaker classifier for object store calls.
func IsFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrNotFound)
}

// Name implements ObjectStore.
func (g *Guarded) Name() string { return g.inner.Name() }

// Breaker returns the wrapped circuit breaker (may be nil).
func (g *Guarded) Breaker() *circuitbreaker.CircuitBreaker { return g.cb }

// Get implements ObjectStore.
func (g *Guarded) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := g.call(ctx, "get", func() error {
		var err error
		data, err = g.inner.Get(ctx, key)
		return err
	})
	return data, err
}

// Put implements ObjectStore.
func (g *Guarded) Put(ctx context.Context, key string, data []byte) error {
	return g.call(ctx, "put", func() error {
		return g.inner.Put(ctx, key, data)
	})
}

// Ping implements ObjectStore. Pings bypass the breaker so health reflects
// the backend rather than the breaker's memory of it.
func (g *Guarded) Ping(ctx context.Context) error {
	return g.inner.Ping(ctx)
}

func (g *Guarded) call(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	var err error
	if g.cb != nil {
		err = g.cb.Call(ctx, fn)
	} else {
		err = fn()
	}
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case errors.Is(err, circuitbreaker.ErrOpen):
		status = "circuit_open"
	default:
		status = string(apperr.Categorize(err))
	}
	observability.RemoteOperationsTotal.WithLabelValues(g.inner.Name(), op, status).Inc()
	observability.RemoteOperationDuration.WithLabelValues(g.inner.Name(), op).Observe(time.Since(start).Seconds())
	return err
}
