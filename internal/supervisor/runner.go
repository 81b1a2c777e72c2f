package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
)

// ErrNotFound is returned when the command does not exist or is not
// executable.
var ErrNotFound = errors.New("supervisor: command not found")

// Command describes one child process.
type Command struct {
	// Path is the program. A relative path with a separator, such as
	// "./containers-up.sh", is resolved against Dir.
	Path string
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is appended to the parent environment.
	Env []string
}

// CommandRunner abstracts process execution so tests can script outcomes.
type CommandRunner interface {
	// Run executes c and returns stdout and stderr merged in the order the
	// child wrote them.
	Run(ctx context.Context, c Command) ([]byte, error)
}

// ExecRunner runs commands on the local host with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner. A missing or non-executable program wraps
// ErrNotFound; a non-zero exit returns the *exec.ExitError together with
// the output gathered so far.
func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)

	output, err := cmd.CombinedOutput()
	if err == nil {
		return output, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output, err
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return output, fmt.Errorf("%w: %s: %v", ErrNotFound, c.Path, err)
	}
	return output, err
}
