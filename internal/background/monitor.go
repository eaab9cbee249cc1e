package background

import (
	"errors"
	"io"
)

const (
	// readChunkSize is how much stderr is read from a command per read.
	readChunkSize = 256

	// maxReadsPerPass bounds how many chunks a single command can have read
	// in one PollOnce, so a chatty command cannot hold up the main context.
	maxReadsPerPass = 16

	// fastRunExitCode is the shell's exit code for a command that was not
	// found.
	fastRunExitCode = 127

	errorPromptTitle = "Background Process Error"
)

// PollOnce reconciles exits reported since the last call, surfaces buffered
// errors and removes finished jobs. It must be called periodically from the
// main context and never blocks for longer than the poll timeout per command.
//
// Prompts are shown after the suspension window is closed, so a prompt that
// waits on the user does not hold up other callers.
func (s *Supervisor) PollOnce() {
	for _, p := range s.reconcile() {
		p.job.skipErrors = s.prompter.PromptError(errorPromptTitle, p.msg)
	}
}

type pendingPrompt struct {
	job *Job
	msg string
}

// reconcile is the part of PollOnce that runs inside the suspension window. It
// returns the errors to prompt for. Jobs with a pending prompt are kept until
// the next pass.
func (s *Supervisor) reconcile() []pendingPrompt {
	s.bridge.Suspend()
	defer s.bridge.Resume()

	s.bridge.drain(func(e Exit) {
		job, err := s.registry.findRunningCommand(e.Pid)
		if err != nil {
			s.logger.Debug("exit for unknown process", "pid", e.Pid, "exit_code", e.ExitCode)
			return
		}

		if err := job.finish(e.ExitCode); err != nil {
			s.logger.Warn("failed to finish command", "id", job.id, "err", err)
			return
		}

		s.logger.Debug(
			"command exited",
			"id", job.id,
			"pid", job.pid,
			"exit_code", e.ExitCode,
		)
	})

	var prompts []pendingPrompt
	var reruns []string

	prompted := make(map[*Job]bool)

	s.registry.forEach(func(job *Job) {
		if job.kind == KindCommand {
			s.drainStderr(job)

			// Until the exit is drained it is unknown whether the errors
			// belong to a command that was not found.
			if s.cfg.FastRun() && job.Running() {
				return
			}
		}

		if s.shouldFastRun(job) {
			job.takeError()

			if completed := s.cfg.FastRunComplete(job.label); completed != "" {
				reruns = append(reruns, completed)
			} else {
				s.logger.Warn("command not found and no unique completion", "cmd", job.label)
			}

			return
		}

		msg := job.takeError()
		if msg == "" || job.skipErrors {
			return
		}

		prompts = append(prompts, pendingPrompt{job: job, msg: msg})
		prompted[job] = true
	})

	removed := s.registry.removeFinished(func(job *Job) bool {
		return prompted[job]
	})

	for _, job := range removed {
		if job.kind == KindOperation {
			s.progressList.Remove(job.progress)
		}

		if err := job.release(); err != nil {
			s.logger.Warn("failed to release job", "id", job.id, "err", err)
		}

		s.logger.Debug(
			"reaped job",
			"id", job.id,
			"kind", job.kind,
			"exit_code", job.ExitCode(),
		)
	}

	for _, cmdline := range reruns {
		if _, err := s.startCommandLocked(cmdline, false); err != nil {
			s.logger.Warn("failed to rerun completed command", "cmd", cmdline, "err", err)
		}
	}

	return prompts
}

// drainStderr reads whatever the command has written to stderr, waiting at
// most the poll timeout for each chunk.
func (s *Supervisor) drainStderr(job *Job) {
	if job.stderrEOF {
		return
	}

	buf := make([]byte, readChunkSize)

	for range maxReadsPerPass {
		ready, err := pollReadable(job.stderr, s.pollTimeout)
		if err != nil {
			s.logger.Warn("failed to poll stderr", "id", job.id, "err", err)
			job.stderrEOF = true
			break
		}

		if !ready {
			break
		}

		n, err := job.stderr.Read(buf)
		if n > 0 {
			job.appendStderr(buf[:n])
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("failed to read stderr", "id", job.id, "err", err)
			}

			job.stderrEOF = true
			break
		}
	}
}

// shouldFastRun reports whether job is a stopped command that failed because
// its command was not found.
func (s *Supervisor) shouldFastRun(job *Job) bool {
	return job.kind == KindCommand &&
		!job.Running() &&
		job.hasPendingError() &&
		job.ExitCode() == fastRunExitCode &&
		s.cfg.FastRun()
}
