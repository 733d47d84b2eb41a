package jre

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"

	"github.com/emotionice/treexlauncher/internal/common/command"
	"github.com/emotionice/treexlauncher/internal/common/logger"
)

// ErrNoRuntime is returned when no candidate satisfies the required version.
// The launcher cannot start without a runtime.
var ErrNoRuntime = errors.New("no Java runtime matching the required version")

// Resolver tries candidates from each strategy in order and returns the
// first whose major version is accepted.
type Resolver struct {
	Strategies []Strategy
	Probe      Prober
	Required   int
	AllowNewer bool
}

// Options configures NewResolver
type Options struct {
	Required      int
	AllowNewer    bool
	Explicit      string
	ExtraPatterns []string

	// Zero values select the real system
	Runner command.Executor
	Fs     afero.Fs
	GOOS   string
	Home   string
}

// NewResolver builds the standard strategy chain: explicit path, PATH
// lookup, then well-known install locations.
func NewResolver(opts Options) *Resolver {
	if opts.Runner == nil {
		opts.Runner = command.NewRunner("")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.Home == "" {
		opts.Home = userHome()
	}

	patterns := append(DefaultPatterns(opts.GOOS, opts.Home), opts.ExtraPatterns...)

	return &Resolver{
		Strategies: []Strategy{
			Explicit{Path: opts.Explicit},
			PathLookup{Runner: opts.Runner, GOOS: opts.GOOS},
			WellKnownPaths{Fs: opts.Fs, Patterns: patterns},
		},
		Probe:      VersionProber{Runner: opts.Runner},
		Required:   opts.Required,
		AllowNewer: opts.AllowNewer,
	}
}

// Accepts reports whether major satisfies the requirement
func (r *Resolver) Accepts(major int) bool {
	if r.AllowNewer {
		return major >= r.Required
	}
	return major == r.Required
}

// Resolve returns the first accepted runtime
func (r *Resolver) Resolve(ctx context.Context) (Runtime, error) {
	seen := make(map[string]bool)
	tried := 0

	for _, s := range r.Strategies {
		candidates, err := s.Candidates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Runtime{}, ctx.Err()
			}
			logger.Debug("Runtime lookup %s failed: %v", s.Name(), err)
		}

		for _, c := range candidates {
			key := filepath.Clean(c)
			if seen[key] {
				continue
			}
			seen[key] = true
			tried++

			rt, err := r.Probe.Probe(ctx, c)
			if err != nil {
				if ctx.Err() != nil {
					return Runtime{}, ctx.Err()
				}
				logger.Debug("Skipping %s: %v", c, err)
				continue
			}
			if !r.Accepts(rt.Major) {
				logger.Debug("Skipping %s: Java %d (%s), need %d", c, rt.Major, rt.Version, r.Required)
				continue
			}
			logger.Debug("Using %s runtime %s (Java %s)", s.Name(), rt.Path, rt.Version)
			return rt, nil
		}
	}

	return Runtime{}, fmt.Errorf("%w: need Java %d, %d candidates checked", ErrNoRuntime, r.Required, tried)
}
