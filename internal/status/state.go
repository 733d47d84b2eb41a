// Package status renders launcher state: a colored console line in
// headless mode or a tview panel in interactive mode.
package status

import (
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/emotionice/treexlauncher/internal/update"
)

// State is one of the labels the surface can show
type State int

const (
	StateReady State = iota
	StateChecking
	StateLaunching
	StateInitialized
	StateStopped
	StateUpdated
	StateUpToDate
	StateUpdateFailed
	StateExited
)

type stateStyle struct {
	label string
	color string // name understood by output.ByName
	tcell tcell.Color
}

var styles = map[State]stateStyle{
	StateReady:        {"Ready", "white", tcell.ColorWhite},
	StateChecking:     {"Checking for updates…", "cyan", tcell.ColorDarkCyan},
	StateLaunching:    {"Launching…", "yellow", tcell.ColorYellow},
	StateInitialized:  {"Initialized", "green", tcell.ColorGreen},
	StateStopped:      {"Stopped", "gray", tcell.ColorGray},
	StateUpdated:      {"Updated", "green", tcell.ColorGreen},
	StateUpToDate:     {"Already up to date", "green", tcell.ColorGreen},
	StateUpdateFailed: {"Failed to update", "red", tcell.ColorRed},
	StateExited:       {"Exited", "yellow", tcell.ColorYellow},
}

// Label returns the text shown for the state
func (s State) Label() string {
	if st, ok := styles[s]; ok {
		return st.label
	}
	return "Unknown"
}

// ColorName returns the console color name of the state
func (s State) ColorName() string {
	if st, ok := styles[s]; ok {
		return st.color
	}
	return "white"
}

// Color returns the panel color of the state
func (s State) Color() tcell.Color {
	if st, ok := styles[s]; ok {
		return st.tcell
	}
	return tcell.ColorWhite
}

func (s State) String() string { return s.Label() }

// ForUpdate maps an update outcome to a state
func ForUpdate(s update.Status) State {
	switch s {
	case update.StatusUpdated:
		return StateUpdated
	case update.StatusUpToDate:
		return StateUpToDate
	default:
		return StateUpdateFailed
	}
}

// Surface displays the current state. detail may be empty.
type Surface interface {
	Show(state State, detail string)
}

// Entry is one recorded Show call
type Entry struct {
	State  State
	Detail string
}

// Recorder is a Surface that keeps every call, for tests and logs
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) Show(state State, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{State: state, Detail: detail})
}

// Entries returns the recorded calls in order
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// States returns only the recorded states
func (r *Recorder) States() []State {
	var states []State
	for _, e := range r.Entries() {
		states = append(states, e.State)
	}
	return states
}

// Last returns the most recent entry
func (r *Recorder) Last() (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return Entry{}, false
	}
	return r.entries[len(r.entries)-1], true
}
