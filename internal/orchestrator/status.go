package orchestrator

import "fmt"

// Status is the lifecycle state of one task.
//
//	PENDING ──► RUNNING ──► SUCCEEDED
//	               │
//	               ├──────► FAILED
//	               └──────► TIMED_OUT
//
// SUCCEEDED, FAILED and TIMED_OUT are terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusTimedOut  Status = "TIMED_OUT"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusSucceeded, StatusFailed, StatusTimedOut},
	// terminal states have no outgoing transitions
}

// ParseStatus converts a raw string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed, StatusTimedOut:
		return st, nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// IsTransitionAllowed reports whether moving from → to is permitted.
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func IsTerminal(s Status) bool {
	_, ok := validTransitions[s]
	return !ok
}

// ReportStatus maps a terminal status to the report's vocabulary.
func (s Status) ReportStatus() string {
	switch s {
	case StatusSucceeded:
		return "success"
	case StatusTimedOut:
		return "timeout"
	default:
		return "error"
	}
}
