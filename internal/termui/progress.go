package termui

import (
	"fmt"
	"io"
	"sync"

	"github.com/nixpig/bgjobs/internal/background/progress"
	"golang.org/x/term"
)

const defaultWidth = 80

// ProgressList keeps the operations currently shown to the user, in the order
// they were added, and renders one line per operation.
type ProgressList struct {
	mu    sync.Mutex
	items []*progress.State
	dirty bool

	out   io.Writer
	width int
}

// NewProgressList creates a ProgressList rendering to out. Lines are cut to
// the terminal width when out is a terminal, or to width when it is positive.
func NewProgressList(out io.Writer, width int) *ProgressList {
	if width <= 0 {
		width = defaultWidth

		if f, ok := out.(fder); ok {
			if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
				width = w
			}
		}
	}

	return &ProgressList{out: out, width: width}
}

func (l *ProgressList) Add(p *progress.State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append(l.items, p)
	l.dirty = true
}

func (l *ProgressList) Remove(p *progress.State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, item := range l.items {
		if item == p {
			l.items = append(l.items[:i], l.items[i+1:]...)
			l.dirty = true
			return
		}
	}
}

// Changed marks the list for redraw. It is called from worker goroutines.
func (l *ProgressList) Changed(p *progress.State) {
	l.mu.Lock()
	l.dirty = true
	l.mu.Unlock()
}

// Len returns the number of operations on the list.
func (l *ProgressList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.items)
}

// Render writes the list if anything changed since the last Render and
// reports whether it did.
func (l *ProgressList) Render() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.dirty {
		return false, nil
	}

	l.dirty = false

	for _, item := range l.items {
		if _, err := fmt.Fprintln(l.out, l.line(item.Snapshot())); err != nil {
			return true, fmt.Errorf("render progress: %w", err)
		}
	}

	return true, nil
}

func (l *ProgressList) line(s progress.Snapshot) string {
	var line string

	if s.Percent == progress.Indeterminate {
		line = fmt.Sprintf("[%4s] %s", "--", s.Description)
	} else {
		line = fmt.Sprintf("[%3d%%] %s", s.Percent, s.Description)
	}

	if r := []rune(line); len(r) > l.width {
		return string(r[:l.width])
	}

	return line
}
