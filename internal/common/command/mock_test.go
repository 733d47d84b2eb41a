package command

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// **Feature: runtime-discovery, Property 1: Mock records every invocation**
func TestMockRunnerRecordsCalls(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("each Run is recorded as one command line", prop.ForAll(
		func(args []string) bool {
			mock := NewMockRunner("")
			for _, a := range args {
				if _, err := mock.Run(context.Background(), "java", a); err != nil {
					return false
				}
			}
			calls := mock.Calls()
			if len(calls) != len(args) {
				return false
			}
			for i, c := range calls {
				if !strings.HasPrefix(c, "java") {
					return false
				}
				if args[i] != "" && !strings.HasSuffix(c, args[i]) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func TestMockRunnerDelegates(t *testing.T) {
	want := errors.New("boom")
	mock := NewMockRunner("/opt")
	mock.RunFunc = func(_ context.Context, name string, args ...string) (Result, error) {
		if name != "which" || len(args) != 2 || args[0] != "-a" {
			t.Errorf("unexpected invocation %s %v", name, args)
		}
		return Result{Stdout: "/usr/bin/java\n"}, want
	}

	res, err := mock.Run(context.Background(), "which", "-a", "java")
	if !errors.Is(err, want) {
		t.Fatalf("expected configured error, got %v", err)
	}
	if res.Stdout != "/usr/bin/java\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if mock.WorkDir() != "/opt" {
		t.Errorf("WorkDir = %q", mock.WorkDir())
	}
	if got := mock.Calls(); len(got) != 1 || got[0] != "which -a java" {
		t.Errorf("Calls = %v", got)
	}
}

func TestMockRunnerDefaultsToEmptyResult(t *testing.T) {
	res, err := NewMockRunner("").Run(context.Background(), "true")
	if err != nil || res != (Result{}) {
		t.Errorf("expected zero result, got %+v, %v", res, err)
	}
}
