package background

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/nixpig/bgjobs/internal/background/progress"
)

// Kind is the kind of work a Job tracks. It never changes after creation.
type Kind int

const (
	// KindCommand is an external shell command. Its errors are surfaced from
	// captured stderr.
	KindCommand Kind = iota

	// KindTask is an internal worker that is not shown on the progress list.
	KindTask

	// KindOperation is an internal worker shown on the progress list. It counts
	// towards HasActiveOperations.
	KindOperation
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindTask:
		return "task"
	case KindOperation:
		return "operation"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Job is one unit of tracked background work: a detached child process or a
// worker goroutine. Jobs are owned by the Supervisor that created them from
// registration until they are reaped.
type Job struct {
	id    string
	kind  Kind
	label string

	state    AtomicJobState
	exitCode atomic.Int32

	// Command jobs only. exited is set by the reaper once the child has been
	// waited for, before its exit reaches the bridge.
	pid       int
	stderr    *os.File
	stderrEOF bool
	exited    atomic.Bool

	// Task and Operation jobs only.
	progress *progress.State
	ctx      context.Context
	cancel   context.CancelFunc

	errMu      sync.Mutex
	pendingErr []byte

	// skipErrors is only touched by PollOnce once the job is registered.
	skipErrors bool

	done chan struct{}
}

// JobInfo is a point-in-time copy of a Job's observable fields. It is what
// enumeration hands out, so callers never hold a Job across a poll.
type JobInfo struct {
	ID       string
	Kind     Kind
	Label    string
	State    JobState
	ExitCode int
	Pid      int
	Progress *progress.Snapshot
}

func newCommandJob(id, label string, pid int, stderr *os.File, skipErrors bool) *Job {
	j := &Job{
		id:         id,
		kind:       KindCommand,
		label:      label,
		pid:        pid,
		stderr:     stderr,
		stderrEOF:  stderr == nil,
		skipErrors: skipErrors,
		done:       make(chan struct{}),
	}

	j.exitCode.Store(-1)
	j.state.Store(JobStateRunning)

	return j
}

func newWorkJob(
	id string,
	kind Kind,
	label string,
	p *progress.State,
) *Job {
	ctx, cancel := context.WithCancel(context.Background())

	j := &Job{
		id:        id,
		kind:      kind,
		label:     label,
		progress:  p,
		cancel:    cancel,
		stderrEOF: true,
		done:      make(chan struct{}),
	}

	j.ctx = withJob(ctx, j)

	j.exitCode.Store(-1)
	j.state.Store(JobStateRunning)

	return j
}

// ID returns the ID of the Job.
func (j *Job) ID() string {
	return j.id
}

// Kind returns the kind of the Job.
func (j *Job) Kind() Kind {
	return j.kind
}

// Label returns the command line or description the Job was created with.
func (j *Job) Label() string {
	return j.label
}

// State returns the state of the Job.
func (j *Job) State() JobState {
	return j.state.Load()
}

// Running reports whether the Job has not yet finished.
func (j *Job) Running() bool {
	return j.state.Load() != JobStateStopped
}

// ExitCode returns the exit code of the Job or -1 while it is running.
func (j *Job) ExitCode() int {
	if j.Running() {
		return -1
	}

	return int(j.exitCode.Load())
}

// Pid returns the process ID of a Command job, or 0 for worker jobs.
func (j *Job) Pid() int {
	return j.pid
}

// Progress returns the progress state of a Task or Operation job, or nil for
// a Command job.
func (j *Job) Progress() *progress.State {
	return j.progress
}

// Done returns a channel that is closed once the Job is marked finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Cancel asks the Job to stop. Worker jobs have their context cancelled and
// are expected to notice on their own. Command jobs have their process group
// sent SIGTERM unless the child has already been waited for.
func (j *Job) Cancel() error {
	if !j.Running() {
		return nil
	}

	if j.kind == KindCommand {
		// The pid may already belong to someone else.
		if j.exited.Load() {
			return nil
		}

		return terminate(j.pid)
	}

	j.cancel()

	return nil
}

// Info returns a snapshot of the Job.
func (j *Job) Info() JobInfo {
	info := JobInfo{
		ID:       j.id,
		Kind:     j.kind,
		Label:    j.label,
		State:    j.State(),
		ExitCode: j.ExitCode(),
		Pid:      j.pid,
	}

	if j.progress != nil {
		snap := j.progress.Snapshot()
		info.Progress = &snap
	}

	return info
}

// finish moves the Job to its terminal state. Trying to finish a Job twice
// returns an InvalidStateError and leaves the first exit code in place.
func (j *Job) finish(code int) error {
	if !j.state.CompareAndSwap(JobStateRunning, JobStateStopping) {
		return NewInvalidStateError(j.state.Load(), JobStateStopping)
	}

	j.exitCode.Store(int32(code))

	if j.progress != nil {
		j.progress.Freeze()
	}

	j.state.Store(JobStateStopped)

	close(j.done)

	return nil
}

// reportError appends msg to the pending error buffer on behalf of the
// worker. It is refused once the job has finished.
func (j *Job) reportError(msg string) bool {
	j.errMu.Lock()
	defer j.errMu.Unlock()

	if !j.Running() {
		return false
	}

	j.pendingErr = append(j.pendingErr, msg...)
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		j.pendingErr = append(j.pendingErr, '\n')
	}

	return true
}

// appendStderr is used by the monitor to buffer captured stderr.
func (j *Job) appendStderr(b []byte) {
	j.errMu.Lock()
	j.pendingErr = append(j.pendingErr, b...)
	j.errMu.Unlock()
}

func (j *Job) hasPendingError() bool {
	j.errMu.Lock()
	defer j.errMu.Unlock()

	return len(j.pendingErr) > 0
}

func (j *Job) takeError() string {
	j.errMu.Lock()
	defer j.errMu.Unlock()

	msg := string(j.pendingErr)
	j.pendingErr = j.pendingErr[:0]

	return msg
}

// release frees everything the Job holds once it has been unlinked.
func (j *Job) release() error {
	var err error

	if j.stderr != nil {
		err = j.stderr.Close()
		j.stderr = nil
	}

	if j.cancel != nil {
		j.cancel()
	}

	j.errMu.Lock()
	j.pendingErr = nil
	j.errMu.Unlock()

	return err
}
