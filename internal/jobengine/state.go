package jobengine

import "sync/atomic"

type JobState int32

const (
	// JobStatePending indicates the Job has been created but the underlying
	// process has not started yet.
	JobStatePending JobState = iota

	// JobStateRunning indicates the process is executing.
	JobStateRunning

	// JobStateCompleted indicates the process exited on its own with code 0.
	JobStateCompleted

	// JobStateFailed indicates the process exited on its own with a non-zero
	// code, or the runner hit an internal error and forced the Job terminal.
	JobStateFailed

	// JobStateCancelled indicates the process was terminated by a cancel
	// request. Its recorded return code is always CancelReturnCode.
	JobStateCancelled
)

// NOTE: This slice needs to be kept in sync with any changes to the JobState
// values.
var jobStates = []string{
	"Pending",
	"Running",
	"Completed",
	"Failed",
	"Cancelled",
}

// String returns a string representation of the JobState.
func (s JobState) String() string {
	if int(s) < 0 || int(s) >= len(jobStates) {
		return "Unknown"
	}

	return jobStates[s]
}

// Terminal reports whether the state is one a Job can never leave.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

// AtomicJobState is a wrapper around an atomic.Int32 to provide atomic
// operations on a JobState. CompareAndSwap makes validating state
// transitions lock-free: only one caller can win the transition out of
// Running, which is what keeps terminal transitions idempotent.
type AtomicJobState struct {
	v atomic.Int32
}

// Load atomically loads the JobState value.
func (a *AtomicJobState) Load() JobState {
	return JobState(a.v.Load())
}

// Store atomically stores the JobState value.
func (a *AtomicJobState) Store(s JobState) {
	a.v.Store(int32(s))
}

// CompareAndSwap performs an atomic compare-and-swap operation with an old
// and new JobState.
func (a *AtomicJobState) CompareAndSwap(o, n JobState) bool {
	return a.v.CompareAndSwap(int32(o), int32(n))
}
