package background

// Registry is the collection of every Job the Supervisor tracks. It has no
// lock of its own: every method must be called inside the Bridge's suspension
// window, which is checked on each call.
type Registry struct {
	bridge *Bridge
	jobs   []*Job
}

// NewRegistry creates an empty Registry guarded by the given Bridge.
func NewRegistry(bridge *Bridge) *Registry {
	return &Registry{bridge: bridge}
}

// add places job at the front of the registry. Consumers must not depend on
// the order otherwise.
func (r *Registry) add(job *Job) {
	r.bridge.mustBeSuspended()

	r.jobs = append(r.jobs, nil)
	copy(r.jobs[1:], r.jobs)
	r.jobs[0] = job
}

// removeFinished unlinks every stopped job for which keep returns false and
// returns them in registry order. It is the only operation that deletes.
func (r *Registry) removeFinished(keep func(*Job) bool) []*Job {
	r.bridge.mustBeSuspended()

	var removed []*Job

	kept := r.jobs[:0]
	for _, job := range r.jobs {
		if !job.Running() && (keep == nil || !keep(job)) {
			removed = append(removed, job)
			continue
		}

		kept = append(kept, job)
	}

	clear(r.jobs[len(kept):])
	r.jobs = kept

	return removed
}

// forEach calls fn for every job.
func (r *Registry) forEach(fn func(*Job)) {
	r.bridge.mustBeSuspended()

	for _, job := range r.jobs {
		fn(job)
	}
}

// forEachRunning calls fn for every job that has not finished.
func (r *Registry) forEachRunning(fn func(*Job)) {
	r.forEach(func(job *Job) {
		if job.Running() {
			fn(job)
		}
	})
}

// findRunningCommand returns the oldest running Command job for pid. Exits
// are drained oldest first, so a pid reused by a newer job is matched to the
// exit that belongs to it.
func (r *Registry) findRunningCommand(pid int) (*Job, error) {
	r.bridge.mustBeSuspended()

	for i := len(r.jobs) - 1; i >= 0; i-- {
		job := r.jobs[i]
		if job.kind == KindCommand && job.pid == pid && job.Running() {
			return job, nil
		}
	}

	return nil, ErrJobNotFound
}

// findByID returns the job with the given ID.
func (r *Registry) findByID(id string) (*Job, error) {
	r.bridge.mustBeSuspended()

	for _, job := range r.jobs {
		if job.id == id {
			return job, nil
		}
	}

	return nil, ErrJobNotFound
}

// count returns the number of tracked jobs.
func (r *Registry) count() int {
	r.bridge.mustBeSuspended()

	return len(r.jobs)
}
