//go:build unix

package background

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

func TestCommandJobCancel(t *testing.T) {
	t.Parallel()

	t.Run("Test cancel terminates the process group", func(t *testing.T) {
		t.Parallel()

		child, err := Launch("/bin/sh", "sleep 30", RedirectDiscard)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		job := newCommandJob("id", "sleep 30", child.Pid(), nil, false)

		if err := job.Cancel(); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		code, err := child.Wait()
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if code != 128+int(unix.SIGTERM) {
			t.Errorf("expected exit code: got '%d', want '%d'", code, 128+int(unix.SIGTERM))
		}
	})

	t.Run("Test cancel after the child was waited for sends nothing", func(t *testing.T) {
		t.Parallel()

		// Stands in for an unrelated group that took over the pid.
		other, err := Launch("/bin/sh", "sleep 30", RedirectDiscard)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		defer func() {
			other.Kill()
			other.Wait()
		}()

		job := newCommandJob("id", "sleep 30", other.Pid(), nil, false)
		job.exited.Store(true)

		if !job.Running() {
			t.Fatalf("expected job to run until its exit is drained")
		}

		if err := job.Cancel(); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := unix.Kill(-other.Pid(), 0); err != nil {
			t.Errorf("expected process group to be left alone: got '%v'", err)
		}
	})

	t.Run("Test reaper marks the job before the exit is drained", func(t *testing.T) {
		t.Parallel()

		s := New(stubConfig{})

		job, err := s.StartCommand("true", false)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		waitForExits(t, s.bridge, 1)

		if !job.Running() || !job.exited.Load() {
			t.Fatalf("expected running job whose child was waited for")
		}

		if err := job.Cancel(); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		if err := unix.Kill(-job.Pid(), 0); !errors.Is(err, unix.ESRCH) {
			t.Errorf("expected process group to be gone: got '%v'", err)
		}
	})
}
