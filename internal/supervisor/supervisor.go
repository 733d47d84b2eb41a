// Package supervisor runs the artifact as a child process and owns its
// lifecycle: launch, readiness detection, process-tree termination and
// restart. At most one managed process exists at a time.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/emotionice/treexlauncher/internal/common/logger"
)

var (
	// ErrStartFailed is returned when the runtime could not be started
	ErrStartFailed = errors.New("failed to start process")
	// ErrStopTimeout is returned when the main process did not exit after being killed
	ErrStopTimeout = errors.New("process did not exit in time")
)

const (
	defaultKillWait = 2 * time.Second
	pollInterval    = 20 * time.Millisecond
	eventBuffer     = 64
)

// Config describes what to run
type Config struct {
	// Runtime is the java binary
	Runtime string
	JVMArgs []string
	// Artifact returns the artifact path, or "" when none is installed
	Artifact func() string
	// WorkDir defaults to the artifact's directory
	WorkDir string
	// ReadinessMarker is searched in stdout lines; empty disables the scan
	ReadinessMarker string
	// ReadyTimeout emits EventReadyTimeout when the marker is late; zero disables it
	ReadyTimeout time.Duration
	// KillWait bounds each wait for a killed process to disappear
	KillWait time.Duration
	// Tree defaults to ProcessTree
	Tree Tree
}

// instance is one managed process
type instance struct {
	runID    string
	artifact string
	cmd      *exec.Cmd
	pid      int
	started  time.Time

	ready     chan struct{}
	readyOnce sync.Once
	exited    chan struct{}
	exitErr   error
	cancel    context.CancelFunc
	stopping  atomic.Bool
}

func (i *instance) markReady() bool {
	first := false
	i.readyOnce.Do(func() {
		close(i.ready)
		first = true
	})
	return first
}

func (i *instance) isReady() bool {
	select {
	case <-i.ready:
		return true
	default:
		return false
	}
}

// Info is a snapshot of the managed process
type Info struct {
	Running  bool
	Ready    bool
	PID      int
	RunID    string
	Artifact string
	Started  time.Time
}

// Supervisor owns the managed process handle
type Supervisor struct {
	cfg  Config
	tree Tree

	// opMu serializes Launch, Stop and Restart
	opMu sync.Mutex
	// mu guards current
	mu      sync.Mutex
	current *instance

	events chan Event
}

// New creates a Supervisor
func New(cfg Config) *Supervisor {
	if cfg.KillWait <= 0 {
		cfg.KillWait = defaultKillWait
	}
	tree := cfg.Tree
	if tree == nil {
		tree = ProcessTree{}
	}
	return &Supervisor{
		cfg:    cfg,
		tree:   tree,
		events: make(chan Event, eventBuffer),
	}
}

// Events returns the event stream. It has a single reader; events are
// dropped when the buffer is full.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

func (s *Supervisor) emit(e Event) {
	select {
	case s.events <- e:
	default:
		logger.Debug("Dropping %s event, no reader", e.Type)
	}
}

func (s *Supervisor) get() *instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Running reports whether a managed process exists
func (s *Supervisor) Running() bool {
	return s.get() != nil
}

// PID returns the managed process id, or 0
func (s *Supervisor) PID() int {
	if inst := s.get(); inst != nil {
		return inst.pid
	}
	return 0
}

// Ready returns a channel closed once the current process printed the
// readiness marker. It is nil when nothing runs.
func (s *Supervisor) Ready() <-chan struct{} {
	if inst := s.get(); inst != nil {
		return inst.ready
	}
	return nil
}

// Info returns a snapshot of the managed process
func (s *Supervisor) Info() Info {
	inst := s.get()
	if inst == nil {
		return Info{}
	}
	return Info{
		Running:  true,
		Ready:    inst.isReady(),
		PID:      inst.pid,
		RunID:    inst.runID,
		Artifact: inst.artifact,
		Started:  inst.started,
	}
}

// Wait blocks until the current process exits and returns its exit error.
// It returns nil at once when nothing runs.
func (s *Supervisor) Wait() error {
	inst := s.get()
	if inst == nil {
		return nil
	}
	<-inst.exited
	return inst.exitErr
}

// Launch starts the artifact. A missing artifact makes it a no-op. A
// running process is stopped first. ctx bounds the readiness scan only,
// not the process lifetime.
func (s *Supervisor) Launch(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.launchLocked(ctx)
}

// Stop terminates the process tree. It is a no-op when nothing runs.
func (s *Supervisor) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLocked()
}

// Restart stops then launches
func (s *Supervisor) Restart(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.stopLocked(); err != nil {
		logger.Warn("Stop before restart: %v", err)
	}
	return s.launchLocked(ctx)
}

func (s *Supervisor) launchLocked(ctx context.Context) error {
	artifact := ""
	if s.cfg.Artifact != nil {
		artifact = s.cfg.Artifact()
	}
	if artifact == "" {
		logger.Warn("No artifact installed, nothing to launch")
		return nil
	}
	if _, err := os.Stat(artifact); err != nil {
		logger.Warn("Artifact %s not found, nothing to launch", artifact)
		return nil
	}

	if s.get() != nil {
		if err := s.stopLocked(); err != nil {
			logger.Warn("Stopping previous instance: %v", err)
		}
	}

	args := append(append([]string(nil), s.cfg.JVMArgs...), "-jar", artifact)
	cmd := exec.Command(s.cfg.Runtime, args...)
	cmd.Dir = s.cfg.WorkDir
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(artifact)
	}
	cmd.WaitDelay = s.cfg.KillWait

	runID := uuid.NewString()
	prefix := fmt.Sprintf("[%s] ", runID[:8])

	stdoutR, stdoutW := io.Pipe()
	stderr := logger.Default().Writer(logger.LevelInfo, prefix)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderr

	logger.Debug("Starting %s %s", s.cfg.Runtime, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stdoutR.Close()
		stderr.Close()
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	scanCtx, cancel := context.WithCancel(ctx)
	inst := &instance{
		runID:    runID,
		artifact: artifact,
		cmd:      cmd,
		pid:      cmd.Process.Pid,
		started:  time.Now(),
		ready:    make(chan struct{}),
		exited:   make(chan struct{}),
		cancel:   cancel,
	}

	s.mu.Lock()
	s.current = inst
	s.mu.Unlock()

	logger.Info("Launched %s (pid %d, run %s)", filepath.Base(artifact), inst.pid, runID)
	s.emit(Event{Type: EventLaunched, RunID: runID, PID: inst.pid})

	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		s.scan(scanCtx, inst, stdoutR, prefix)
	}()

	go s.watch(inst, stdoutW, stderr, scanDone)

	if s.cfg.ReadinessMarker != "" && s.cfg.ReadyTimeout > 0 {
		go s.readyTimer(scanCtx, inst)
	}
	return nil
}

// scan forwards stdout to the log and looks for the readiness marker.
// Once ctx is done matching stops but the pipe keeps being drained so the
// child never blocks on a full pipe.
func (s *Supervisor) scan(ctx context.Context, inst *instance, r io.Reader, prefix string) {
	marker := s.cfg.ReadinessMarker
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug("%s%s", prefix, line)

		if marker == "" || ctx.Err() != nil || inst.isReady() {
			continue
		}
		if strings.Contains(line, marker) && inst.markReady() {
			logger.Info("Process %d initialized", inst.pid)
			s.emit(Event{Type: EventInitialized, RunID: inst.runID, PID: inst.pid})
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Debug("%sstdout scan stopped: %v", prefix, err)
		io.Copy(io.Discard, r)
	}
}

// watch reaps the process and clears the handle if it exited on its own
func (s *Supervisor) watch(inst *instance, stdoutW *io.PipeWriter, stderr io.Closer, scanDone <-chan struct{}) {
	err := inst.cmd.Wait()
	stdoutW.Close()
	<-scanDone
	stderr.Close()
	inst.cancel()

	inst.exitErr = err
	// EventExited is queued before Wait callers are released
	defer close(inst.exited)

	if inst.stopping.Load() {
		return
	}

	s.mu.Lock()
	if s.current == inst {
		s.current = nil
	}
	s.mu.Unlock()

	if err != nil {
		logger.Warn("Process %d exited: %v", inst.pid, err)
	} else {
		logger.Info("Process %d exited", inst.pid)
	}
	s.emit(Event{Type: EventExited, RunID: inst.runID, PID: inst.pid, Err: err})
}

func (s *Supervisor) readyTimer(ctx context.Context, inst *instance) {
	t := time.NewTimer(s.cfg.ReadyTimeout)
	defer t.Stop()

	select {
	case <-inst.ready:
	case <-inst.exited:
	case <-ctx.Done():
	case <-t.C:
		logger.Warn("Process %d not initialized after %s", inst.pid, s.cfg.ReadyTimeout)
		s.emit(Event{Type: EventReadyTimeout, RunID: inst.runID, PID: inst.pid})
	}
}

// stopLocked kills descendants deepest first, then the main process. The
// handle is cleared whatever happens; already-exited processes are not
// errors.
func (s *Supervisor) stopLocked() error {
	inst := s.get()
	if inst == nil {
		return nil
	}
	inst.stopping.Store(true)
	inst.cancel()

	defer func() {
		s.mu.Lock()
		if s.current == inst {
			s.current = nil
		}
		s.mu.Unlock()
		s.emit(Event{Type: EventStopped, RunID: inst.runID, PID: inst.pid})
	}()

	var errs []error

	descendants, err := s.tree.Descendants(inst.pid)
	if err != nil && !errors.Is(err, ErrProcessGone) {
		errs = append(errs, fmt.Errorf("list children of %d: %w", inst.pid, err))
	}
	for _, pid := range descendants {
		if err := s.tree.Kill(pid); err != nil {
			if !errors.Is(err, ErrProcessGone) {
				errs = append(errs, fmt.Errorf("kill %d: %w", pid, err))
			}
			continue
		}
		s.waitGone(pid)
	}

	if err := inst.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		errs = append(errs, fmt.Errorf("kill %d: %w", inst.pid, err))
	}

	t := time.NewTimer(s.cfg.KillWait)
	defer t.Stop()
	select {
	case <-inst.exited:
		logger.Info("Stopped process %d", inst.pid)
	case <-t.C:
		errs = append(errs, fmt.Errorf("%w: pid %d", ErrStopTimeout, inst.pid))
	}

	return errors.Join(errs...)
}

// waitGone polls until pid disappears or KillWait elapses
func (s *Supervisor) waitGone(pid int) {
	deadline := time.Now().Add(s.cfg.KillWait)
	for s.tree.Alive(pid) {
		if time.Now().After(deadline) {
			logger.Warn("Process %d still alive after kill", pid)
			return
		}
		time.Sleep(pollInterval)
	}
}
