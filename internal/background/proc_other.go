//go:build !unix

package background

import (
	"fmt"
	"os"
	"syscall"
)

// Without a pollable pipe the monitor cannot drain stderr without blocking, so
// command jobs discard it here.
const canCaptureStderr = false

func detachedProcAttr() *syscall.SysProcAttr {
	return nil
}

func terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}

	if err := p.Kill(); err != nil {
		return fmt.Errorf("kill process %d: %w", pid, err)
	}

	return nil
}

func kill(pid int) error {
	return terminate(pid)
}

func exitStatus(ps *os.ProcessState) int {
	if ps == nil {
		return -1
	}

	return ps.ExitCode()
}
