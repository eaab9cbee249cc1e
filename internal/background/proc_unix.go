//go:build unix

package background

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// canCaptureStderr reports whether command jobs get their stderr piped back
// to the monitor on this platform.
const canCaptureStderr = true

// detachedProcAttr starts the child in a new session, without a controlling
// terminal and as the leader of its own process group.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// terminate sends SIGTERM to the process group led by pid. A group that has
// already gone away is not an error.
func terminate(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("terminate: invalid pid %d", pid)
	}

	if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}

		return fmt.Errorf("terminate process group %d: %w", pid, err)
	}

	return nil
}

// kill sends SIGKILL to the process group led by pid.
func kill(pid int) error {
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill process group %d: %w", pid, err)
	}

	return nil
}

func exitStatus(ps *os.ProcessState) int {
	if ps == nil {
		return -1
	}

	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}

	return ps.ExitCode()
}
