package status

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/emotionice/treexlauncher/internal/common/output"
	"github.com/emotionice/treexlauncher/internal/update"
)

var allStates = []State{
	StateReady, StateChecking, StateLaunching, StateInitialized, StateStopped,
	StateUpdated, StateUpToDate, StateUpdateFailed, StateExited,
}

func TestStateLabels(t *testing.T) {
	want := map[State]string{
		StateReady:        "Ready",
		StateChecking:     "Checking for updates…",
		StateLaunching:    "Launching…",
		StateInitialized:  "Initialized",
		StateStopped:      "Stopped",
		StateUpdated:      "Updated",
		StateUpToDate:     "Already up to date",
		StateUpdateFailed: "Failed to update",
		StateExited:       "Exited",
	}
	for state, label := range want {
		if got := state.Label(); got != label {
			t.Errorf("%d: Label() = %q, want %q", state, got, label)
		}
		if state.String() != label {
			t.Errorf("%d: String() should equal Label()", state)
		}
	}
	if State(99).Label() != "Unknown" {
		t.Errorf("unknown state label = %q", State(99).Label())
	}
}

func TestStateColors(t *testing.T) {
	if StateInitialized.ColorName() != "green" || StateUpdateFailed.ColorName() != "red" {
		t.Error("initialized should be green and failures red")
	}
	for _, s := range allStates {
		if output.ByName(s.ColorName()) == nil {
			t.Errorf("%s: color %q has no console mapping", s, s.ColorName())
		}
	}
}

func TestForUpdate(t *testing.T) {
	cases := map[update.Status]State{
		update.StatusUpdated:  StateUpdated,
		update.StatusUpToDate: StateUpToDate,
		update.StatusFailed:   StateUpdateFailed,
	}
	for in, want := range cases {
		if got := ForUpdate(in); got != want {
			t.Errorf("ForUpdate(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestConsoleShow(t *testing.T) {
	output.NoColor()
	buf := new(bytes.Buffer)
	c := NewConsole(buf)

	c.Show(StateInitialized, "pid 4242")
	c.Show(StateStopped, "")

	want := "[Initialized] pid 4242\n[Stopped]\n"
	if buf.String() != want {
		t.Errorf("console output = %q, want %q", buf.String(), want)
	}
}

// **Feature: launcher-status, Property 3: Console prints one line per state change**
func TestConsoleOneLinePerShow(t *testing.T) {
	output.NoColor()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("each Show adds exactly one labelled line", prop.ForAll(
		func(indexes []int, detail string) bool {
			buf := new(bytes.Buffer)
			c := NewConsole(buf)
			for _, i := range indexes {
				c.Show(allStates[i], detail)
			}
			lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
			if len(indexes) == 0 {
				return buf.Len() == 0
			}
			if len(lines) != len(indexes) {
				return false
			}
			for n, i := range indexes {
				if !strings.HasPrefix(lines[n], "["+allStates[i].Label()+"]") {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(allStates)-1)),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	if _, ok := r.Last(); ok {
		t.Fatal("empty recorder should have no last entry")
	}

	r.Show(StateChecking, "")
	r.Show(StateUpToDate, "abc123")

	states := r.States()
	if len(states) != 2 || states[0] != StateChecking || states[1] != StateUpToDate {
		t.Errorf("states = %v", states)
	}
	last, ok := r.Last()
	if !ok || last.Detail != "abc123" {
		t.Errorf("last = %+v", last)
	}

	entries := r.Entries()
	entries[0].Detail = "mutated"
	if r.Entries()[0].Detail != "" {
		t.Error("Entries should return a copy")
	}
}
