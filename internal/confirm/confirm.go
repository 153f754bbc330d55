// Package confirm asks the operator before destructive operations.
package confirm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxAttempts is how many answers Prompt reads before giving up.
const MaxAttempts = 5

// Provider answers whether a destructive operation on target may proceed.
type Provider interface {
	Confirm(target string) (bool, error)
}

// Prompt asks on out and reads exact "yes" or "no" answers from in.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompt creates a Prompt over the given streams.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

// Confirm returns true only for an exact "yes". Anything other than "yes"
// or "no" is asked again, up to MaxAttempts times. End of input is a no.
func (p *Prompt) Confirm(target string) (bool, error) {
	_, _ = fmt.Fprintln(p.out, "ALL of yum metadata and RPM's will be deleted from:")
	_, _ = fmt.Fprintln(p.out, target)

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		_, _ = fmt.Fprint(p.out, "Are you sure you want to delete this repo? (yes/no):")

		line, err := p.in.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				_, _ = fmt.Fprintln(p.out)
				return false, nil
			}
			return false, fmt.Errorf("failed to read answer: %w", err)
		}

		switch strings.TrimRight(line, "\r\n") {
		case "yes":
			return true, nil
		case "no":
			return false, nil
		}
		_, _ = fmt.Fprintln(p.out, `Please type "yes" or "no"`)
	}
	return false, nil
}
