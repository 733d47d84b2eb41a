package command

import "context"

// Executor defines the interface for running external programs.
// This interface allows for mocking command execution in tests.
type Executor interface {
	// Run executes name with args and returns its captured output
	Run(ctx context.Context, name string, args ...string) (Result, error)

	// WorkDir returns the directory commands run in
	WorkDir() string
}

// Result holds the captured output of a finished command
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout followed by stderr
func (r Result) Combined() string {
	if r.Stdout == "" {
		return r.Stderr
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + "\n" + r.Stderr
}
