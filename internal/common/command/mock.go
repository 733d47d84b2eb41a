package command

import (
	"context"
	"strings"
	"sync"
)

// MockRunner implements Executor for testing.
// RunFunc controls behavior; every call is recorded in Calls.
type MockRunner struct {
	RunFunc func(ctx context.Context, name string, args ...string) (Result, error)
	workDir string

	mu    sync.Mutex
	calls []string
}

// NewMockRunner creates a new MockRunner with the specified working directory
func NewMockRunner(workDir string) *MockRunner {
	return &MockRunner{
		workDir: workDir,
	}
}

// Run records the invocation and delegates to RunFunc
func (m *MockRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, name, args...)
	}
	return Result{}, nil
}

// Calls returns every command line run so far
func (m *MockRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// WorkDir returns the working directory of the mock
func (m *MockRunner) WorkDir() string {
	return m.workDir
}

// Ensure both implementations satisfy Executor
var (
	_ Executor = (*Runner)(nil)
	_ Executor = (*MockRunner)(nil)
)
