// Package liveness derives a machine's effective status from its heartbeat
// age. All status-deriving code paths share one Policy so the offline and
// critical thresholds are never re-specified per call site.
package liveness

import "time"

// Status is the derived liveness of a machine.
type Status string

const (
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusCritical Status = "critical_offline"
	// StatusInvalid means the heartbeat carries no usable timestamp. It is
	// alarmed distinctly from a plain offline timeout.
	StatusInvalid Status = "invalid"
)

// Policy holds the two liveness thresholds.
type Policy struct {
	Offline  time.Duration
	Critical time.Duration
}

// DefaultPolicy returns the canonical thresholds: 5 minutes to offline,
// 30 minutes to critical-offline.
func DefaultPolicy() Policy {
	return Policy{
		Offline:  5 * time.Minute,
		Critical: 30 * time.Minute,
	}
}

// Classify derives the status from the last-seen timestamp (epoch
// milliseconds) at the given instant. Pure function; no side effects.
func (p Policy) Classify(lastSeenMS int64, now time.Time) Status {
	if lastSeenMS <= 0 {
		return StatusInvalid
	}
	delta := now.UnixMilli() - lastSeenMS
	if delta > p.Critical.Milliseconds() {
		return StatusCritical
	}
	if delta > p.Offline.Milliseconds() {
		return StatusOffline
	}
	return StatusOnline
}
