package background

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Redirect selects what a launched child's standard streams are bound to.
// Standard input is always the null device.
type Redirect int

const (
	// RedirectDiscard binds stdout and stderr to the null device.
	RedirectDiscard Redirect = iota

	// RedirectInherit shares the caller's stdout and stderr with the child.
	RedirectInherit

	// RedirectStderr pipes stderr back to the caller. Stdout is discarded.
	RedirectStderr

	// RedirectBoth pipes both stdout and stderr back to the caller.
	RedirectBoth
)

// Child is a child process started by Launch. Stdout and Stderr are the read
// ends of the pipes requested by the Redirect, or nil.
type Child struct {
	cmd *exec.Cmd

	Stdout *os.File
	Stderr *os.File
}

// Launch starts cmdline through the shell interpreter, detached from the
// controlling terminal. On failure every descriptor it created is closed and
// nothing keeps running.
func Launch(shell, cmdline string, redirect Redirect) (*Child, error) {
	if strings.TrimSpace(cmdline) == "" {
		return nil, ErrEmptyCommand
	}

	path, err := exec.LookPath(shell)
	if err != nil {
		return nil, newLaunchError("resolve interpreter", err)
	}

	cmd := exec.Command(path, shellArgs(path, cmdline)...)
	cmd.SysProcAttr = detachedProcAttr()

	child := &Child{cmd: cmd}

	// Write ends are handed to the child and closed here once it has started.
	var childEnds []*os.File

	closeAll := func() {
		for _, f := range childEnds {
			f.Close()
		}

		if child.Stdout != nil {
			child.Stdout.Close()
		}

		if child.Stderr != nil {
			child.Stderr.Close()
		}
	}

	switch redirect {
	case RedirectInherit:
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

	case RedirectBoth:
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, newLaunchError("create stdout pipe", err)
		}

		child.Stdout = pr
		cmd.Stdout = pw
		childEnds = append(childEnds, pw)
	}

	if redirect == RedirectStderr || redirect == RedirectBoth {
		pr, pw, err := os.Pipe()
		if err != nil {
			closeAll()
			return nil, newLaunchError("create stderr pipe", err)
		}

		child.Stderr = pr
		cmd.Stderr = pw
		childEnds = append(childEnds, pw)
	}

	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, newLaunchError("start process", err)
	}

	for _, f := range childEnds {
		f.Close()
	}

	return child, nil
}

// Pid returns the process ID of the child.
func (c *Child) Pid() int {
	return c.cmd.Process.Pid
}

// Wait blocks until the child exits and returns its exit status. A child
// killed by a signal reports 128 plus the signal number. The returned error
// is only set when waiting itself failed.
func (c *Child) Wait() (int, error) {
	err := c.cmd.Wait()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return -1, fmt.Errorf("wait for process: %w", err)
	}

	return exitStatus(c.cmd.ProcessState), nil
}

// Terminate asks the child and everything in its process group to exit.
func (c *Child) Terminate() error {
	return terminate(c.Pid())
}

// Kill forcibly stops the child and everything in its process group.
func (c *Child) Kill() error {
	return kill(c.Pid())
}

// Close closes the parent ends of any pipes. It does not stop the child.
func (c *Child) Close() error {
	var errs []error

	if c.Stdout != nil {
		if err := c.Stdout.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stdout: %w", err))
		}
	}

	if c.Stderr != nil {
		if err := c.Stderr.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stderr: %w", err))
		}
	}

	return errors.Join(errs...)
}

func shellArgs(path, cmdline string) []string {
	if strings.EqualFold(filepath.Base(path), "cmd.exe") {
		return []string{"/C", cmdline}
	}

	return []string{"-c", cmdline}
}
