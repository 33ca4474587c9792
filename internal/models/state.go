package models

// WorkflowState is the lifecycle state of an OCRRun.
type WorkflowState string

const (
	StateStarted   WorkflowState = "STARTED"
	StateFannedOut WorkflowState = "FANNED_OUT"
	StateJoined    WorkflowState = "JOINED"
	StateStitched  WorkflowState = "STITCHED"
	StateCommitted WorkflowState = "COMMITTED"
	StateNotified  WorkflowState = "NOTIFIED"
	StateFailed    WorkflowState = "FAILED"
	// StateSwept marks a FAILED run whose orphaned artifacts were removed.
	StateSwept WorkflowState = "SWEPT"
)

var stateRank = map[WorkflowState]int{
	StateStarted:   1,
	StateFannedOut: 2,
	StateJoined:    3,
	StateStitched:  4,
	StateCommitted: 5,
	StateNotified:  6,
}

// Terminal reports whether no further transition may leave s.
func (s WorkflowState) Terminal() bool {
	return s == StateNotified || s == StateFailed || s == StateSwept
}

// Precedes reports whether next is a forward move along the happy path from s.
// FAILED and SWEPT are handled by the caller.
func (s WorkflowState) Precedes(next WorkflowState) bool {
	return stateRank[s] < stateRank[next]
}
