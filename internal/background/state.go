package background

import "sync/atomic"

type JobState int

const (
	// JobStateUnknown is the zero value for functions that return a (possibly
	// absent) JobState.
	JobStateUnknown JobState = iota

	// JobStateRunning indicates the job's process or worker has not finished.
	JobStateRunning

	// JobStateStopping indicates the job is being marked as finished. Its exit
	// code is being recorded and it still reports as running.
	JobStateStopping

	// JobStateStopped indicates the job has finished and its exit code is
	// final. This state is terminal.
	JobStateStopped
)

// NOTE: Keep in sync with the JobState values above.
var jobStates = []string{
	"Unknown",
	"Running",
	"Stopping",
	"Stopped",
}

// String implements the Stringer interface for JobState.
func (s JobState) String() string {
	if int(s) < 0 || int(s) >= len(jobStates) {
		return jobStates[0]
	}

	return jobStates[s]
}

// AtomicJobState is a wrapper around an atomic.Int32 to provide atomic
// operations on a JobState. Transitions are validated with CompareAndSwap, so
// a job can never go back to running once it has stopped.
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

// CompareAndSwap performs an atomic compare-and-swap operation with an old and
// new JobState.
func (a *AtomicJobState) CompareAndSwap(o, n JobState) bool {
	return a.v.CompareAndSwap(int32(o), int32(n))
}
