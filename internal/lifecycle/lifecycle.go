// Package lifecycle holds the process phase reported by /health.
package lifecycle

import "sync/atomic"

// Phase is where the process is in its lifetime.
type Phase int32

const (
	// PhaseStarting covers cold-start recovery and store open.
	PhaseStarting Phase = iota
	// PhaseServing is normal operation.
	PhaseServing
	// PhaseShuttingDown starts at SIGTERM/SIGINT.
	PhaseShuttingDown
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseServing:
		return "serving"
	case PhaseShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

var phase atomic.Int32

// SetPhase records the current phase.
func SetPhase(p Phase) {
	phase.Store(int32(p))
}

// CurrentPhase returns the current phase.
func CurrentPhase() Phase {
	return Phase(phase.Load())
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
// SetShuttingDown(false) returns to PhaseServing.
func SetShuttingDown(v bool) {
	if v {
		SetPhase(PhaseShuttingDown)
		return
	}
	SetPhase(PhaseServing)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return CurrentPhase() == PhaseShuttingDown
}
