// Package traffic keeps per-second request outcome counts. It is the single
// source for the overload, idle and degraded health signals.
package traffic

import (
	"sync"
	"time"
)

// Kind is a counted outcome.
type Kind int

const (
	// Success is a request served from storage.
	Success Kind = iota
	// Error is a request that failed (storage unavailable, query failure, timeout).
	Error
	// Denied is a rate-limit denial (429).
	Denied
	// Query is a flight listing query, counted for idle detection.
	Query

	numKinds
)

// Retention is how far back counts are kept. Longer windows are clamped.
const Retention = 30 * time.Minute

type bucket struct {
	sec    int64
	counts [numKinds]int
}

// Tracker counts outcomes in a ring of one-second buckets. Memory is fixed
// regardless of request rate.
type Tracker struct {
	mu      sync.Mutex
	buckets []bucket
	now     func() time.Time
}

// NewTracker returns a Tracker that keeps counts for retention.
func NewTracker(retention time.Duration) *Tracker {
	n := int(retention/time.Second) + 1
	if n < 2 {
		n = 2
	}
	return &Tracker{buckets: make([]bucket, n), now: time.Now}
}

// Record counts one outcome of kind k now.
func (t *Tracker) Record(k Kind) {
	t.RecordN(k, 1)
}

// RecordN counts n outcomes of kind k now.
func (t *Tracker) RecordN(k Kind, n int) {
	if k < 0 || k >= numKinds || n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	sec := t.now().Unix()
	b := &t.buckets[sec%int64(len(t.buckets))]
	if b.sec != sec {
		*b = bucket{sec: sec}
	}
	b.counts[k] += n
}

// Count returns the total of the given kinds over the trailing window,
// including the current second. Windows under a second count the current
// second only.
func (t *Tracker) Count(window time.Duration, kinds ...Kind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	secs := int64(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	if limit := int64(len(t.buckets) - 1); secs > limit {
		secs = limit
	}
	now := t.now().Unix()
	n := 0
	for i := range t.buckets {
		b := &t.buckets[i]
		if b.sec > now-secs && b.sec <= now {
			for _, k := range kinds {
				if k >= 0 && k < numKinds {
					n += b.counts[k]
				}
			}
		}
	}
	return n
}

// Reset clears all counts.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.buckets {
		t.buckets[i] = bucket{}
	}
}

var defaultTracker = NewTracker(Retention)

// RecordSuccess records a successful request outcome.
func RecordSuccess() { defaultTracker.Record(Success) }

// RecordError records a failed request outcome.
func RecordError() { defaultTracker.Record(Error) }

// RecordDenied records a rate-limit denial (429).
func RecordDenied() { defaultTracker.Record(Denied) }

// RecordQuery records a flight listing query.
func RecordQuery() { defaultTracker.Record(Query) }

// RequestCount returns the number of outcomes (success + error + denied) within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.Count(window, Success, Error, Denied)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.Count(window, Denied)
}

// QueryCount returns the number of listing queries within the window.
func QueryCount(window time.Duration) int {
	return defaultTracker.Count(window, Query)
}

// ErrorRate returns (errorCount, totalCount) within the window. totalCount = successes + errors (denied excluded).
func ErrorRate(window time.Duration) (errors, total int) {
	errors = defaultTracker.Count(window, Error)
	return errors, errors + defaultTracker.Count(window, Success)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}
