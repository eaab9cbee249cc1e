package background

import (
	"context"
	"fmt"

	"github.com/nixpig/bgjobs/internal/background/progress"
)

// WorkFunc is the body of a Task or Operation job. ctx carries the owning job
// (see ReportError and JobFromContext) and is cancelled when the job is asked
// to stop; p is the job's progress, written only by the worker.
type WorkFunc func(ctx context.Context, p *progress.State)

type jobContextKey struct{}

func withJob(ctx context.Context, job *Job) context.Context {
	return context.WithValue(ctx, jobContextKey{}, job)
}

// JobFromContext returns the job a worker's context belongs to.
func JobFromContext(ctx context.Context) (*Job, bool) {
	job, ok := ctx.Value(jobContextKey{}).(*Job)
	return job, ok
}

// ReportError attributes err to the job that owns ctx, buffering it so the
// next PollOnce shows it from the main context. It returns false when ctx
// does not belong to a running job, in which case the caller has to report
// the error some other way.
func ReportError(ctx context.Context, err error) bool {
	job, ok := JobFromContext(ctx)
	if !ok || err == nil {
		return false
	}

	return job.reportError(err.Error())
}

// SpawnWork registers a Task or Operation job and starts fn for it on a new
// goroutine. The job finishes with exit code 0 when fn returns. If the
// goroutine cannot be started the job is registered already finished with
// exit code 1 and fn never runs.
func (s *Supervisor) SpawnWork(
	kind Kind,
	label string,
	progressLabel string,
	total int,
	fn WorkFunc,
) (*Job, error) {
	if kind != KindTask && kind != KindOperation {
		return nil, newLaunchError("spawn work", fmt.Errorf("invalid kind %s", kind))
	}

	if fn == nil {
		return nil, newLaunchError("spawn work", fmt.Errorf("work function cannot be nil"))
	}

	p := progress.New(total, progressLabel)
	if kind == KindOperation {
		p.SetNotifier(s.progressList.Changed)
	}

	job := newWorkJob(s.newID(), kind, label, p)

	s.bridge.Suspend()
	s.registry.add(job)
	s.bridge.Resume()

	if kind == KindOperation {
		s.progressList.Add(p)
	}

	if err := s.startWorker(func() { s.runWorker(job, fn) }); err != nil {
		s.logger.Warn("failed to start worker", "id", job.id, "label", label, "err", err)

		if err := job.finish(1); err != nil {
			s.logger.Warn("failed to finish worker", "id", job.id, "err", err)
		}
	}

	return job, nil
}

func (s *Supervisor) runWorker(job *Job, fn WorkFunc) {
	code := 0

	defer func() {
		if r := recover(); r != nil {
			job.reportError(fmt.Sprintf("%s: %v", job.label, r))
			s.logger.Error("worker panicked", "id", job.id, "label", job.label, "panic", r)
			code = 1
		}

		if err := job.finish(code); err != nil {
			s.logger.Warn("failed to finish worker", "id", job.id, "err", err)
		}
	}()

	fn(job.ctx, job.progress)
}
