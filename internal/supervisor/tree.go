package supervisor

import (
	"errors"
	"slices"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// ErrProcessGone is returned when the target process already exited
var ErrProcessGone = errors.New("process already exited")

// Tree inspects and terminates OS processes
type Tree interface {
	// Descendants returns every descendant of pid, deepest first
	Descendants(pid int) ([]int, error)
	Kill(pid int) error
	Alive(pid int) bool
}

// ProcessTree implements Tree with gopsutil
type ProcessTree struct{}

// Descendants walks the child links recursively. Children are listed
// after their own descendants so killing in order never orphans a subtree.
func (ProcessTree) Descendants(pid int) ([]int, error) {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil, ErrProcessGone
		}
		return nil, err
	}

	var out []int
	var walk func(p *process.Process) error
	walk = func(p *process.Process) error {
		children, err := p.Children()
		if err != nil {
			if errors.Is(err, process.ErrorNoChildren) || errors.Is(err, process.ErrorProcessNotRunning) {
				return nil
			}
			return err
		}
		for _, c := range children {
			if err := walk(c); err != nil {
				return err
			}
			out = append(out, int(c.Pid))
		}
		return nil
	}

	return out, walk(root)
}

// Kill sends SIGKILL (TerminateProcess on windows)
func (t ProcessTree) Kill(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ErrProcessGone
	}
	if err := p.Kill(); err != nil {
		if !t.Alive(pid) {
			return ErrProcessGone
		}
		return err
	}
	return nil
}

// Alive reports whether pid exists and is not a zombie
func (ProcessTree) Alive(pid int) bool {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err == nil && slices.Contains(status, process.Zombie) {
		return false
	}
	running, err := p.IsRunning()
	return err == nil && running
}

// FakeTree is an in-memory Tree for tests
type FakeTree struct {
	mu       sync.Mutex
	children map[int][]int
	alive    map[int]bool
	killed   []int
	// KillErr, when set, is returned for these pids
	KillErr map[int]error
}

// NewFakeTree creates an empty FakeTree
func NewFakeTree() *FakeTree {
	return &FakeTree{
		children: make(map[int][]int),
		alive:    make(map[int]bool),
		KillErr:  make(map[int]error),
	}
}

// AddChild registers child under parent as a live process
func (f *FakeTree) AddChild(parent, child int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.children[parent] = append(f.children[parent], child)
	f.alive[child] = true
}

func (f *FakeTree) Descendants(pid int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []int
	var walk func(int)
	walk = func(p int) {
		for _, c := range f.children[p] {
			walk(c)
			out = append(out, c)
		}
	}
	walk(pid)
	return out, nil
}

func (f *FakeTree) Kill(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.KillErr[pid]; err != nil {
		return err
	}
	if !f.alive[pid] {
		return ErrProcessGone
	}
	f.alive[pid] = false
	f.killed = append(f.killed, pid)
	return nil
}

func (f *FakeTree) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

// Killed returns the pids killed so far, in order
func (f *FakeTree) Killed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.killed...)
}
