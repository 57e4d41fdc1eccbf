// Package terminal provides interactive prompts for the command line.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/term"
)

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Prompter asks questions on out and reads answers from in.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer

	// Interactive is false when answers cannot be typed. Questions then
	// resolve to their defaults without being printed.
	Interactive bool
}

// New returns a prompter over in and out.
func New(in io.Reader, out io.Writer, interactive bool) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out, Interactive: interactive}
}

// Stdio returns a prompter over the process stdin and stdout.
func Stdio() *Prompter {
	return New(os.Stdin, os.Stdout, IsTTY())
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimSpace(strings.ToLower(line)), nil
}

// Confirm asks a yes/no question. An empty answer selects defaultYes.
func (p *Prompter) Confirm(question string, defaultYes bool) (bool, error) {
	if !p.Interactive {
		return defaultYes, nil
	}

	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	fmt.Fprintf(p.out, "%s [%s]: ", question, hint)

	answer, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch answer {
	case "":
		return defaultYes, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Choose asks the user to pick one of choices, matching by full word or
// first letter. An empty answer selects def. Unknown answers are asked
// again.
func (p *Prompter) Choose(question string, choices []string, def string) (string, error) {
	if !p.Interactive {
		return def, nil
	}

	for {
		fmt.Fprintf(p.out, "%s [%s] (default %s): ", question, strings.Join(choices, "/"), def)
		answer, err := p.readLine()
		if err != nil {
			return "", err
		}
		if answer == "" {
			return def, nil
		}
		if slices.Contains(choices, answer) {
			return answer, nil
		}
		for _, c := range choices {
			if answer == c[:1] {
				return c, nil
			}
		}
		fmt.Fprintf(p.out, "Please answer one of: %s\n", strings.Join(choices, ", "))
	}
}
