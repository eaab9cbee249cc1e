package background_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nixpig/bgjobs/internal/background"
	"github.com/nixpig/bgjobs/internal/background/progress"
)

type testConfig struct {
	shell    string
	fastRun  bool
	complete func(string) string
}

func (c testConfig) Shell() string {
	if c.shell == "" {
		return "/bin/sh"
	}

	return c.shell
}

func (c testConfig) FastRun() bool {
	return c.fastRun
}

func (c testConfig) FastRunComplete(cmdline string) string {
	if c.complete == nil {
		return ""
	}

	return c.complete(cmdline)
}

type prompt struct {
	title string
	text  string
}

type recordingPrompter struct {
	mu      sync.Mutex
	prompts []prompt
	answer  bool
}

func (p *recordingPrompter) PromptError(title, text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prompts = append(p.prompts, prompt{title, text})

	return p.answer
}

func (p *recordingPrompter) all() []prompt {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]prompt(nil), p.prompts...)
}

// blockingPrompter holds every prompt until releaseAll is called.
type blockingPrompter struct {
	entered    chan struct{}
	enterOnce  sync.Once
	release    chan struct{}
	releaseAll func()
}

func newBlockingPrompter() *blockingPrompter {
	release := make(chan struct{})

	return &blockingPrompter{
		entered:    make(chan struct{}),
		release:    release,
		releaseAll: sync.OnceFunc(func() { close(release) }),
	}
}

func (p *blockingPrompter) PromptError(title, text string) bool {
	p.enterOnce.Do(func() { close(p.entered) })
	<-p.release

	return false
}

type recordingProgressList struct {
	mu      sync.Mutex
	added   map[*progress.State]int
	removed map[*progress.State]int
	changed int
}

func newRecordingProgressList() *recordingProgressList {
	return &recordingProgressList{
		added:   make(map[*progress.State]int),
		removed: make(map[*progress.State]int),
	}
}

func (l *recordingProgressList) Add(p *progress.State) {
	l.mu.Lock()
	l.added[p]++
	l.mu.Unlock()
}

func (l *recordingProgressList) Remove(p *progress.State) {
	l.mu.Lock()
	l.removed[p]++
	l.mu.Unlock()
}

func (l *recordingProgressList) Changed(p *progress.State) {
	l.mu.Lock()
	l.changed++
	l.mu.Unlock()
}

func (l *recordingProgressList) counts(p *progress.State) (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.added[p], l.removed[p]
}

// pollUntil calls PollOnce until cond holds or the timeout expires.
func pollUntil(
	t *testing.T,
	s *background.Supervisor,
	timeout time.Duration,
	cond func() bool,
) {
	t.Helper()

	deadline := time.Now().Add(timeout)

	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %s waiting for condition", timeout)
		}

		s.PollOnce()
		time.Sleep(5 * time.Millisecond)
	}
}

func isTracked(s *background.Supervisor, id string) bool {
	_, err := s.QueryJob(id)
	return err == nil
}

func findJob(s *background.Supervisor, label string) (background.JobInfo, bool) {
	for _, info := range s.Jobs() {
		if strings.Contains(info.Label, label) {
			return info, true
		}
	}

	return background.JobInfo{}, false
}
