package background

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// cancelCheckInterval is how often a synchronous wait checks for a
	// cancellation request.
	cancelCheckInterval = 50 * time.Millisecond

	// terminateGracePeriod is how long a cancelled child has to exit after
	// SIGTERM before it is killed.
	terminateGracePeriod = 2 * time.Second

	errorsReadSize    = 80
	errorsBufferLimit = 800
)

// WaitStatus is the result of RunAndWaitForStatus.
type WaitStatus struct {
	ExitCode  int
	Cancelled bool
}

// Outcome classifies the result of RunAndWaitForErrors.
type Outcome int

const (
	// OutcomeSuccess means nothing was written to stderr and the exit code
	// was zero.
	OutcomeSuccess Outcome = iota

	// OutcomeFailedWithMessage means the command wrote to stderr. The exit
	// code is not considered.
	OutcomeFailedWithMessage

	// OutcomeFailedNoMessage means the command failed without an error
	// message: a non-zero exit code, or stderr output that was only blank
	// lines.
	OutcomeFailedNoMessage
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailedWithMessage:
		return "failed with message"
	case OutcomeFailedNoMessage:
		return "failed without message"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// ErrorsResult is the result of RunAndWaitForErrors.
type ErrorsResult struct {
	Outcome  Outcome
	Message  string
	ExitCode int
}

type waitResult struct {
	code int
	err  error
}

// RunAndWaitForStatus runs cmdline with the caller's stdout and stderr and
// blocks until it exits. While waiting it checks c (which may be nil) and
// ctx; on cancellation the child's process group is terminated, waited for,
// and a cancelled status is returned instead of an exit code.
//
// It bypasses the job registry and must not be used from the main context
// for long-running commands.
func (s *Supervisor) RunAndWaitForStatus(
	ctx context.Context,
	cmdline string,
	c *Cancellation,
) (WaitStatus, error) {
	child, err := Launch(s.cfg.Shell(), cmdline, RedirectInherit)
	if err != nil {
		return WaitStatus{}, err
	}

	if c != nil {
		c.Enable()
		defer c.Disable()
	}

	done := make(chan waitResult, 1)

	go func() {
		code, err := child.Wait()
		done <- waitResult{code, err}
	}()

	ticker := time.NewTicker(cancelCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case r := <-done:
			return WaitStatus{ExitCode: r.code}, r.err

		case <-ctx.Done():
			return s.cancelChild(child, done)

		case <-ticker.C:
			if c != nil && c.Requested() {
				return s.cancelChild(child, done)
			}
		}
	}
}

func (s *Supervisor) cancelChild(
	child *Child,
	done <-chan waitResult,
) (WaitStatus, error) {
	if err := child.Terminate(); err != nil {
		s.logger.Warn("failed to terminate cancelled command", "pid", child.Pid(), "err", err)
	}

	select {
	case <-done:
	case <-time.After(terminateGracePeriod):
		if err := child.Kill(); err != nil {
			s.logger.Warn("failed to kill cancelled command", "pid", child.Pid(), "err", err)
		}

		<-done
	}

	return WaitStatus{ExitCode: -1, Cancelled: true}, nil
}

// RunAndWaitForErrors runs cmdline capturing only stderr and blocks until the
// command exits. Any stderr output makes the result a failure carrying that
// output; otherwise the exit code decides.
func (s *Supervisor) RunAndWaitForErrors(cmdline string) (ErrorsResult, error) {
	child, err := Launch(s.cfg.Shell(), cmdline, RedirectStderr)
	if err != nil {
		return ErrorsResult{}, err
	}

	msg, sawOutput, readErr := readErrors(child.Stderr)
	if readErr != nil {
		s.logger.Warn("failed to read command errors", "pid", child.Pid(), "err", readErr)
	}

	child.Stderr.Close()

	code, err := child.Wait()
	if err != nil {
		return ErrorsResult{}, err
	}

	result := ErrorsResult{Message: msg, ExitCode: code}

	switch {
	case msg != "":
		result.Outcome = OutcomeFailedWithMessage
	case sawOutput || code != 0:
		result.Outcome = OutcomeFailedNoMessage
	default:
		result.Outcome = OutcomeSuccess
	}

	return result, nil
}

// RunAndCapture starts cmdline with both stdout and stderr piped back and
// returns without waiting. The caller must drain both streams and call Wait.
func (s *Supervisor) RunAndCapture(cmdline string) (*Child, error) {
	return Launch(s.cfg.Shell(), cmdline, RedirectBoth)
}

// readErrors reads r until EOF. Reads that are a lone newline are dropped and
// the kept text is capped at errorsBufferLimit bytes, but r is always drained
// so the writer never blocks.
func readErrors(r io.Reader) (string, bool, error) {
	var buf []byte

	chunk := make([]byte, errorsReadSize)
	sawOutput := false

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			sawOutput = true

			if !(n == 1 && chunk[0] == '\n') && len(buf) < errorsBufferLimit {
				buf = append(buf, chunk[:min(n, errorsBufferLimit-len(buf))]...)
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return string(buf), sawOutput, nil
			}

			return string(buf), sawOutput, err
		}
	}
}
