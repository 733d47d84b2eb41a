// Package command runs short-lived external programs (runtime probes, path
// lookups) and captures their output.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var (
	ErrCommand  = errors.New("command failed")
	ErrNotFound = errors.New("executable not found")
)

// Runner executes commands in a specific working directory
type Runner struct {
	workDir string
}

// NewRunner creates a new Runner for the specified working directory.
// An empty workDir runs commands in the current directory.
func NewRunner(workDir string) *Runner {
	return &Runner{
		workDir: workDir,
	}
}

// WorkDir returns the working directory of the Runner
func (r *Runner) WorkDir() string {
	return r.workDir
}

// Run executes name with args and returns stdout, stderr and the exit code.
// A non-zero exit is reported as ErrCommand with stderr attached; the Result
// is still filled so callers that read -version style output can use it.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.workDir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	res := Result{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	if err == nil {
		return res, nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return res, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if msg := strings.TrimSpace(res.Stderr); msg != "" {
		return res, errors.Join(ErrCommand, errors.New(msg))
	}
	return res, errors.Join(ErrCommand, err)
}
