// Package termui provides line-oriented terminal implementations of the
// prompt and progress collaborators the background supervisor reports to.
package termui

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/term"
)

const skipQuestion = "Skip further errors from this job? [y/N] "

// Prompter writes job errors to out. When in is a terminal it also asks
// whether further errors from the same job should be skipped.
type Prompter struct {
	mu sync.Mutex

	in          *bufio.Reader
	out         io.Writer
	interactive bool
	skip        bool
}

// PrompterOption configures a Prompter.
type PrompterOption func(*Prompter)

// WithInteractive overrides terminal detection on the input.
func WithInteractive(interactive bool) PrompterOption {
	return func(p *Prompter) {
		p.interactive = interactive
	}
}

// WithSkipByDefault sets the answer used when the user can't be asked, or
// gives an empty answer.
func WithSkipByDefault(skip bool) PrompterOption {
	return func(p *Prompter) {
		p.skip = skip
	}
}

// NewPrompter creates a Prompter reading answers from in and writing to out.
func NewPrompter(in io.Reader, out io.Writer, opts ...PrompterOption) *Prompter {
	p := &Prompter{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: isTerminal(in),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// PromptError shows text under title and reports whether further errors from
// the same job should be skipped.
func (p *Prompter) PromptError(title, text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s: %s\n", title, strings.TrimRight(text, "\n"))

	if !p.interactive {
		return p.skip
	}

	fmt.Fprint(p.out, skipQuestion)

	answer, err := p.in.ReadString('\n')
	if err != nil && answer == "" {
		fmt.Fprintln(p.out)
		return p.skip
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return p.skip
	}
}

type fder interface {
	Fd() uintptr
}

func isTerminal(v any) bool {
	f, ok := v.(fder)
	return ok && term.IsTerminal(int(f.Fd()))
}
