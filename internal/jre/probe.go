package jre

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/emotionice/treexlauncher/internal/common/command"
)

// ErrVersionUnknown is returned when the version output cannot be parsed
var ErrVersionUnknown = errors.New("unrecognized java version output")

// Runtime is a probed Java binary
type Runtime struct {
	Path    string
	Version string
	Major   int
}

// Prober reports the version of a candidate binary
type Prober interface {
	Probe(ctx context.Context, path string) (Runtime, error)
}

var (
	// openjdk version "17.0.2" 2022-01-18 / java version "1.8.0_292"
	quotedVersionRegex = regexp.MustCompile(`(?m)^\S+ version "([^"]+)"`)
	// openjdk 21 2023-09-19 (output of --version)
	bareVersionRegex = regexp.MustCompile(`(?m)^(?:openjdk|java) (\d[\w.+-]*)`)
	leadingDigits    = regexp.MustCompile(`^\d+`)
)

// VersionProber runs "<path> -version", which prints to stderr
type VersionProber struct {
	Runner command.Executor
}

// Probe runs the candidate and parses its version
func (p VersionProber) Probe(ctx context.Context, path string) (Runtime, error) {
	res, err := p.Runner.Run(ctx, path, "-version")
	out := res.Combined()
	if err != nil && strings.TrimSpace(out) == "" {
		return Runtime{}, err
	}

	v, err := ParseVersionOutput(out)
	if err != nil {
		return Runtime{}, fmt.Errorf("%s: %w", path, err)
	}
	major, err := ParseMajor(v)
	if err != nil {
		return Runtime{}, fmt.Errorf("%s: %w", path, err)
	}
	return Runtime{Path: path, Version: v, Major: major}, nil
}

// ParseVersionOutput extracts the version string from -version output
func ParseVersionOutput(out string) (string, error) {
	if m := quotedVersionRegex.FindStringSubmatch(out); m != nil {
		return m[1], nil
	}
	if m := bareVersionRegex.FindStringSubmatch(out); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("%w: %q", ErrVersionUnknown, firstLine(out))
}

// ParseMajor returns the feature release of a version string.
// Legacy "1.x" versions map to x, so "1.8.0_292" is 8 and "17.0.2" is 17.
func ParseMajor(v string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(v), ".", 3)
	first, err := strconv.Atoi(leadingDigits.FindString(parts[0]))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrVersionUnknown, v)
	}
	if first == 1 && len(parts) > 1 {
		second, err := strconv.Atoi(leadingDigits.FindString(parts[1]))
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrVersionUnknown, v)
		}
		return second, nil
	}
	return first, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
