// Package idle detects sustained low listing traffic, reported by /health so
// an orchestrator can scale the instance in.
package idle

import (
	"time"

	"github.com/kjstillabower/flight-listing-service/internal/traffic"
)

// RequestCount returns the number of listing queries within the window.
func RequestCount(window time.Duration) int {
	return traffic.QueryCount(window)
}

// RecordRequest records a flight listing query. Ingestion, health and metrics
// requests do not count.
func RecordRequest() {
	traffic.RecordQuery()
}

// Below reports whether the average query rate over window is under
// perMinute. The service must have been up for minLifespan first, so a fresh
// instance is never reported idle. Any non-positive setting disables the check.
func Below(window time.Duration, perMinute int, started time.Time, minLifespan time.Duration) bool {
	if window <= 0 || perMinute <= 0 || minLifespan <= 0 {
		return false
	}
	if time.Since(started) < minLifespan {
		return false
	}
	return float64(RequestCount(window)) < float64(perMinute)*window.Minutes()
}

// Reset clears all recorded requests. For tests only.
func Reset() {
	traffic.Reset()
}
