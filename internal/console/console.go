// Package console renders the installer's user-facing output.
//
// Severity is carried by colour, the same way the installer always did it:
// red for failures and warnings, green for success, blue for step headers
// and yellow for hints. Colours come from github.com/juju/ansiterm, which
// drops the escape codes automatically when stdout is not a terminal.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/juju/ansiterm"
)

var (
	successColor = ansiterm.Foreground(ansiterm.Green)
	failureColor = ansiterm.Foreground(ansiterm.Red)
	headerColor  = ansiterm.Foreground(ansiterm.Blue)
	hintColor    = ansiterm.Foreground(ansiterm.Yellow)
)

// Printer writes coloured lines to an output stream.
type Printer struct {
	w *ansiterm.Writer
}

// NewPrinter wraps out. When color is false, escape codes are never written
// even if out is a terminal.
func NewPrinter(out io.Writer, color bool) *Printer {
	w := ansiterm.NewWriter(out)
	if !color {
		w.SetColorCapable(false)
	}
	return &Printer{w: w}
}

// Success prints a green line.
func (p *Printer) Success(format string, args ...interface{}) {
	p.line(successColor, format, args...)
}

// Failure prints a red line. Warnings use the same colour.
func (p *Printer) Failure(format string, args ...interface{}) {
	p.line(failureColor, format, args...)
}

// Header prints a blue step header prefixed with "*** ".
func (p *Printer) Header(format string, args ...interface{}) {
	p.line(headerColor, "*** "+format, args...)
}

// Section prints a blue "**** " banner that opens a group of checks.
func (p *Printer) Section(format string, args ...interface{}) {
	p.line(headerColor, "**** "+format, args...)
}

// Hint prints a yellow line.
func (p *Printer) Hint(format string, args ...interface{}) {
	p.line(hintColor, format, args...)
}

// Plain prints an uncoloured line.
func (p *Printer) Plain(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Output prints captured subprocess output verbatim, adding a trailing
// newline only when the output lacks one.
func (p *Printer) Output(b []byte) {
	if len(b) == 0 {
		return
	}
	_, _ = p.w.Write(b)
	if b[len(b)-1] != '\n' {
		fmt.Fprintln(p.w)
	}
}

func (p *Printer) line(ctx *ansiterm.Context, format string, args ...interface{}) {
	ctx.Fprintf(p.w, format, args...)
	fmt.Fprintln(p.w)
}

// Prompter asks yes/no style questions on an input stream.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Confirm prints question (without a newline) and reads one line.
// It returns true only when the trimmed answer equals expected, ignoring
// case. A closed input stream counts as a refusal.
func (p *Prompter) Confirm(question, expected string) (bool, error) {
	fmt.Fprint(p.out, question)

	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.TrimSpace(line)
	return strings.EqualFold(answer, expected), nil
}
