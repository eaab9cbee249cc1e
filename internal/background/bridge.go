package background

import (
	"sync"
	"sync/atomic"
)

// pendingCapacity is the number of exit records preallocated in each of the
// bridge's buffers. Bursts larger than this grow the buffers once and the
// grown capacity is kept.
const pendingCapacity = 16

// Exit is a child process exit recorded by the Bridge.
type Exit struct {
	Pid      int
	ExitCode int
}

// Bridge carries child process exits from reaper goroutines to the main
// context. Reapers only ever append to its pending list, so it is safe for
// them to report while the main context holds the suspension window.
//
// The suspension window is the only place the job registry may be read or
// mutated.
type Bridge struct {
	mu      sync.Mutex
	pending []Exit
	spare   []Exit

	window    sync.Mutex
	suspended atomic.Bool
}

// NewBridge creates a Bridge with preallocated pending buffers.
func NewBridge() *Bridge {
	return &Bridge{
		pending: make([]Exit, 0, pendingCapacity),
		spare:   make([]Exit, 0, pendingCapacity),
	}
}

// Notify records that the process with the given pid exited. It never blocks
// on the suspension window and never touches the registry.
func (b *Bridge) Notify(pid, exitCode int) {
	b.mu.Lock()
	b.pending = append(b.pending, Exit{Pid: pid, ExitCode: exitCode})
	b.mu.Unlock()
}

// Pending returns the number of exits waiting to be drained.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pending)
}

// Suspend opens the suspension window. Suspend and Resume must be strictly
// paired and never nested.
func (b *Bridge) Suspend() {
	b.window.Lock()

	if b.suspended.Swap(true) {
		panic("background: suspension window opened twice")
	}
}

// Resume closes the suspension window.
func (b *Bridge) Resume() {
	if !b.suspended.Swap(false) {
		panic("background: resume without suspend")
	}

	b.window.Unlock()
}

// Suspended reports whether the suspension window is open.
func (b *Bridge) Suspended() bool {
	return b.suspended.Load()
}

// drain hands every recorded exit to fn, oldest first. It must be called
// inside the suspension window.
func (b *Bridge) drain(fn func(Exit)) {
	b.mustBeSuspended()

	b.mu.Lock()
	exits := b.pending
	b.pending = b.spare[:0]
	b.mu.Unlock()

	for _, e := range exits {
		fn(e)
	}

	b.mu.Lock()
	b.spare = exits[:0]
	b.mu.Unlock()
}

func (b *Bridge) mustBeSuspended() {
	if !b.suspended.Load() {
		panic("background: job list accessed outside the suspension window")
	}
}
