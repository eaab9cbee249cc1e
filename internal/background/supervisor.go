package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nixpig/bgjobs/internal/background/progress"
)

// defaultPollTimeout bounds how long PollOnce waits on each stderr pipe.
const defaultPollTimeout = time.Millisecond

// ConfigProvider supplies the settings the Supervisor launches commands with.
type ConfigProvider interface {
	// Shell returns the interpreter used to run command lines.
	Shell() string

	// FastRun reports whether a command that was not found should be
	// completed and retried.
	FastRun() bool

	// FastRunComplete completes the command name in cmdline. An empty result
	// means no unique completion exists.
	FastRunComplete(cmdline string) string
}

// Prompter shows an error to the user. The result is true when the user asked
// not to be shown further errors from the same job.
type Prompter interface {
	PromptError(title, text string) bool
}

// ProgressList is the UI's list of visible operations.
type ProgressList interface {
	Add(p *progress.State)
	Remove(p *progress.State)
	Changed(p *progress.State)
}

// WorkerStarter runs fn on a new execution context. It returns an error when
// that context could not be created, in which case fn must not run.
type WorkerStarter func(fn func()) error

// Supervisor launches and tracks background jobs. PollOnce must be called
// regularly from a single main context; every other method is safe for
// concurrent use.
type Supervisor struct {
	cfg ConfigProvider

	bridge   *Bridge
	registry *Registry

	prompter     Prompter
	progressList ProgressList
	logger       *slog.Logger
	startWorker  WorkerStarter
	pollTimeout  time.Duration
	newID        func() string
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithPrompter sets the error prompt service.
func WithPrompter(p Prompter) Option {
	return func(s *Supervisor) {
		s.prompter = p
	}
}

// WithProgressList sets the progress list that Operation jobs are shown on.
func WithProgressList(l ProgressList) Option {
	return func(s *Supervisor) {
		s.progressList = l
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithWorkerStarter replaces the function that starts worker goroutines.
func WithWorkerStarter(fn WorkerStarter) Option {
	return func(s *Supervisor) {
		s.startWorker = fn
	}
}

// WithPollTimeout sets how long PollOnce waits on each stderr pipe.
func WithPollTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.pollTimeout = d
	}
}

// New creates a Supervisor with no jobs.
func New(cfg ConfigProvider, opts ...Option) *Supervisor {
	bridge := NewBridge()

	s := &Supervisor{
		cfg:          cfg,
		bridge:       bridge,
		registry:     NewRegistry(bridge),
		prompter:     nopPrompter{},
		progressList: nopProgressList{},
		logger:       slog.New(slog.DiscardHandler),
		startWorker:  goStarter,
		pollTimeout:  defaultPollTimeout,
		newID:        uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// StartCommand launches cmdline as a detached background command and
// registers it. When skipErrors is set, stderr output from the command is
// never prompted. A launch that fails registers nothing.
func (s *Supervisor) StartCommand(cmdline string, skipErrors bool) (*Job, error) {
	s.bridge.Suspend()
	defer s.bridge.Resume()

	return s.startCommandLocked(cmdline, skipErrors)
}

func (s *Supervisor) startCommandLocked(cmdline string, skipErrors bool) (*Job, error) {
	redirect := RedirectDiscard
	if canCaptureStderr {
		redirect = RedirectStderr
	}

	child, err := Launch(s.cfg.Shell(), cmdline, redirect)
	if err != nil {
		s.logger.Warn("failed to start command", "cmd", cmdline, "err", err)
		return nil, err
	}

	job := newCommandJob(s.newID(), cmdline, child.Pid(), child.Stderr, skipErrors)

	s.registry.add(job)

	go s.reap(job, child)

	s.logger.Debug(
		"started command",
		"id", job.id,
		"pid", job.pid,
		"cmd", cmdline,
	)

	return job, nil
}

// reap waits for child and reports its exit through the bridge. It is the
// only thing that runs when a child exits.
func (s *Supervisor) reap(job *Job, child *Child) {
	code, err := child.Wait()
	if err != nil {
		s.logger.Warn("failed to wait for command", "pid", child.Pid(), "err", err)
	}

	job.exited.Store(true)

	s.bridge.Notify(child.Pid(), code)
}

// HasActiveOperations reports whether any Operation job is still tracked,
// i.e. has not been reaped by PollOnce.
func (s *Supervisor) HasActiveOperations() bool {
	s.bridge.Suspend()
	defer s.bridge.Resume()

	active := false

	s.registry.forEach(func(job *Job) {
		if job.kind == KindOperation {
			active = true
		}
	})

	return active
}

// Jobs returns a snapshot of every tracked job, newest first.
func (s *Supervisor) Jobs() []JobInfo {
	s.bridge.Suspend()
	defer s.bridge.Resume()

	infos := make([]JobInfo, 0, s.registry.count())

	s.registry.forEach(func(job *Job) {
		infos = append(infos, job.Info())
	})

	return infos
}

// QueryJob returns a snapshot of the job with the given id or ErrJobNotFound
// if it is not tracked (anymore).
func (s *Supervisor) QueryJob(id string) (JobInfo, error) {
	s.bridge.Suspend()
	defer s.bridge.Resume()

	job, err := s.registry.findByID(id)
	if err != nil {
		return JobInfo{}, err
	}

	return job.Info(), nil
}

// Run calls PollOnce every interval until ctx is done.
func (s *Supervisor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PollOnce()
		}
	}
}

// Shutdown makes a 'best effort' attempt to stop every running job: commands
// are sent SIGTERM and workers have their context cancelled. It does not wait
// for them; later calls to PollOnce reap them as usual.
func (s *Supervisor) Shutdown() {
	var running []*Job

	s.bridge.Suspend()
	s.registry.forEachRunning(func(job *Job) {
		running = append(running, job)
	})
	s.bridge.Resume()

	var wg sync.WaitGroup

	for _, job := range running {
		wg.Go(func() {
			if err := job.Cancel(); err != nil {
				s.logger.Warn("failed to stop job", "id", job.id, "err", err)
			}
		})
	}

	wg.Wait()
}

func goStarter(fn func()) error {
	go fn()
	return nil
}

type nopPrompter struct{}

func (nopPrompter) PromptError(title, text string) bool { return false }

type nopProgressList struct{}

func (nopProgressList) Add(*progress.State)     {}
func (nopProgressList) Remove(*progress.State)  {}
func (nopProgressList) Changed(*progress.State) {}
