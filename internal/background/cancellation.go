package background

import "sync/atomic"

type cancellationState int32

const (
	cancellationDisabled cancellationState = iota
	cancellationEnabled
	cancellationRequested
)

// Cancellation is a request flag shared between a blocking call and whoever
// may want to interrupt it, e.g. a SIGINT handler. Requests made while it is
// disabled are ignored. The zero value is disabled and ready to use.
type Cancellation struct {
	state atomic.Int32
}

// Enable starts accepting cancellation requests.
func (c *Cancellation) Enable() {
	c.state.Store(int32(cancellationEnabled))
}

// Request asks for cancellation. It reports whether the request was accepted.
func (c *Cancellation) Request() bool {
	return c.state.CompareAndSwap(
		int32(cancellationEnabled),
		int32(cancellationRequested),
	)
}

// Requested reports whether cancellation has been requested since Enable.
func (c *Cancellation) Requested() bool {
	return cancellationState(c.state.Load()) == cancellationRequested
}

// Disable stops accepting requests and clears any pending one.
func (c *Cancellation) Disable() {
	c.state.Store(int32(cancellationDisabled))
}
