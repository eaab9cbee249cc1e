// Package progress provides the progress record shared between a background
// worker, which is its only writer, and the UI, which reads it.
package progress

import "sync"

// Indeterminate is the cached percentage of a State whose total is unknown.
const Indeterminate = -1

// Snapshot is a copy of a State's fields taken under its lock.
type Snapshot struct {
	Total       int
	Done        int
	Percent     int
	Description string
}

// State is the progress of a single Task or Operation job. All access goes
// through its mutex. Once frozen, mutations are ignored.
type State struct {
	mu sync.Mutex

	total   int
	done    int
	percent int
	descr   string
	frozen  bool

	onChange func(*State)
}

// New creates a State with the given total and description. A total of zero
// means the amount of work is not known up front.
func New(total int, description string) *State {
	s := &State{
		total: max(total, 0),
		descr: description,
	}

	s.recompute()

	return s
}

// SetNotifier sets the function called by Changed. It is set by the owner of
// the State before any worker starts using it.
func (s *State) SetNotifier(fn func(*State)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Update applies fn to a copy of the current fields and stores the result,
// all under the lock. The cached percentage is recomputed from Total and
// Done; a Percent set by fn is ignored. Returns false if the State is frozen.
func (s *State) Update(fn func(*Snapshot)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return false
	}

	snap := s.snapshotLocked()
	fn(&snap)

	s.total = max(snap.Total, 0)
	s.done = snap.Done
	s.descr = snap.Description
	s.recompute()

	return true
}

// Advance adds n to the done count.
func (s *State) Advance(n int) bool {
	return s.Update(func(p *Snapshot) {
		p.Done += n
	})
}

// SetDescription replaces the description text.
func (s *State) SetDescription(description string) bool {
	return s.Update(func(p *Snapshot) {
		p.Description = description
	})
}

// Snapshot returns a consistent copy of the current fields.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

// Changed tells the progress list that the State was modified. It must not be
// called with the lock held.
func (s *State) Changed() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

// Freeze stops all further mutation.
func (s *State) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (s *State) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.frozen
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Total:       s.total,
		Done:        s.done,
		Percent:     s.percent,
		Description: s.descr,
	}
}

func (s *State) recompute() {
	if s.total == 0 {
		s.percent = Indeterminate
		return
	}

	s.percent = min(max(s.done*100/s.total, 0), 100)
}
