// Package cli provides interactive terminal prompt helpers for commands that
// fall back to asking the user when an argument is omitted.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoInput is returned when input ends before a valid answer was given.
var ErrNoInput = errors.New("no input")

// Prompter handles interactive terminal prompts.
type Prompter struct {
	In      io.Reader
	Out     io.Writer
	scanner *bufio.Scanner
	eof     bool
}

// Interactive reports whether r is a terminal.
func Interactive(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *Prompter) scan() *bufio.Scanner {
	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.In)
	}
	return p.scanner
}

// readLine reads a single trimmed line from the scanner.
func (p *Prompter) readLine() string {
	if p.scan().Scan() {
		return strings.TrimSpace(p.scan().Text())
	}
	p.eof = true
	return ""
}

// Ask prints a question with a default value and reads one line.
// Returns the default if the user presses Enter without typing.
func (p *Prompter) Ask(question, defaultVal string) string {
	if defaultVal != "" {
		_, _ = fmt.Fprintf(p.Out, "%s [%s]: ", question, defaultVal)
	} else {
		_, _ = fmt.Fprintf(p.Out, "%s: ", question)
	}
	line := p.readLine()
	if line != "" {
		return line
	}
	return defaultVal
}

// AskValid asks until check accepts the answer, returning check's result.
// Rejections are printed and the question repeated. Once input is exhausted
// the last rejection is returned wrapped in ErrNoInput.
func (p *Prompter) AskValid(question, defaultVal string, check func(string) (string, error)) (string, error) {
	for {
		v, err := check(p.Ask(question, defaultVal))
		if err == nil {
			return v, nil
		}
		if p.eof {
			return "", fmt.Errorf("%w: %w", ErrNoInput, err)
		}
		_, _ = fmt.Fprintf(p.Out, "  %v\n", err)
	}
}

// Confirm asks a yes/no question.
func (p *Prompter) Confirm(question string, defaultYes bool) bool {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	ans := p.Ask(fmt.Sprintf("%s [%s]", question, hint), "")
	if ans == "" {
		return defaultYes
	}
	return strings.HasPrefix(strings.ToLower(ans), "y")
}
