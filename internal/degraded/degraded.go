// Package degraded tracks the signals behind a "degraded" health report: the
// request error rate and whether the remote copy is behind the local one.
package degraded

import (
	"sync"
	"time"

	"github.com/kjstillabower/flight-listing-service/internal/traffic"
)

// RecordSuccess records a request that was served from storage.
func RecordSuccess() {
	traffic.RecordSuccess()
}

// RecordError records a failed request (storage unavailable, query failure, timeout).
func RecordError() {
	traffic.RecordError()
}

// ErrorRate returns (errorCount, totalCount) within the window. totalCount = successes + errors.
func ErrorRate(window time.Duration) (errors, total int) {
	return traffic.ErrorRate(window)
}

// Breached reports whether the error share over window is at least
// thresholdPct percent. No traffic is never a breach.
func Breached(window time.Duration, thresholdPct int) bool {
	if window <= 0 || thresholdPct <= 0 {
		return false
	}
	errCount, total := ErrorRate(window)
	if total == 0 {
		return false
	}
	return float64(errCount)*100/float64(total) >= float64(thresholdPct)
}

var (
	remoteMu    sync.Mutex
	remoteStale bool
	remoteSince time.Time
	remoteErr   string
)

// MarkRemoteStale records that the last flush failed, so the remote copy no
// longer matches the local database. The first failure time is kept until
// ClearRemoteStale.
func MarkRemoteStale(err error) {
	remoteMu.Lock()
	defer remoteMu.Unlock()
	if !remoteStale {
		remoteSince = time.Now()
	}
	remoteStale = true
	if err != nil {
		remoteErr = err.Error()
	}
}

// ClearRemoteStale records a successful flush.
func ClearRemoteStale() {
	remoteMu.Lock()
	defer remoteMu.Unlock()
	remoteStale = false
	remoteSince = time.Time{}
	remoteErr = ""
}

// RemoteStale reports whether the remote copy is behind, since when, and the
// last flush error.
func RemoteStale() (stale bool, since time.Time, lastErr string) {
	remoteMu.Lock()
	defer remoteMu.Unlock()
	return remoteStale, remoteSince, remoteErr
}

// Reset clears all recorded data. For tests only.
func Reset() {
	traffic.Reset()
	ClearRemoteStale()
}
