// Package overload reports whether the rate-limited /api path is running
// near its configured capacity.
package overload

import (
	"time"

	"github.com/kjstillabower/flight-listing-service/internal/traffic"
)

// RecordDenial records a rate-limit denial (429). Call from middleware when returning 429.
func RecordDenial() {
	traffic.RecordDenied()
}

// RequestCount returns the number of requests (success + error + denied) within the given window.
func RequestCount(window time.Duration) int {
	return traffic.RequestCount(window)
}

// DenialCount returns the number of denials within the given window.
func DenialCount(window time.Duration) int {
	return traffic.DenialCount(window)
}

// Threshold is the request count over window that marks the service
// overloaded: thresholdPct percent of what rps allows in that window.
func Threshold(window time.Duration, rps, thresholdPct int) float64 {
	return float64(rps) * window.Seconds() * float64(thresholdPct) / 100
}

// Exceeded reports whether traffic over window is above Threshold. Any
// non-positive setting disables the check.
func Exceeded(window time.Duration, rps, thresholdPct int) bool {
	if window <= 0 || rps <= 0 || thresholdPct <= 0 {
		return false
	}
	return float64(RequestCount(window)) > Threshold(window, rps, thresholdPct)
}

// Reset clears all recorded data. For tests only.
func Reset() {
	traffic.Reset()
}
