// Package jre locates an installed Java runtime of a required major version.
package jre

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/emotionice/treexlauncher/internal/common/command"
)

// Strategy produces candidate runtime binaries
type Strategy interface {
	Name() string
	Candidates(ctx context.Context) ([]string, error)
}

// Explicit yields a single configured path
type Explicit struct {
	Path string
}

func (s Explicit) Name() string { return "explicit" }

// Candidates returns the configured path, if any
func (s Explicit) Candidates(context.Context) ([]string, error) {
	if strings.TrimSpace(s.Path) == "" {
		return nil, nil
	}
	return []string{s.Path}, nil
}

// PathLookup asks the OS lookup utility for every java on PATH
type PathLookup struct {
	Runner command.Executor
	GOOS   string
}

func (s PathLookup) Name() string { return "path" }

// Candidates runs "which -a java" ("where java" on windows). A lookup that
// finds nothing exits non-zero, which is reported as no candidates.
func (s PathLookup) Candidates(ctx context.Context) ([]string, error) {
	name, args := "which", []string{"-a", "java"}
	if s.GOOS == "windows" {
		name, args = "where", []string{"java"}
	}

	res, err := s.Runner.Run(ctx, name, args...)
	if err != nil {
		if errors.Is(err, command.ErrCommand) && strings.TrimSpace(res.Stdout) == "" {
			return nil, nil
		}
		return nil, err
	}
	return splitLines(res.Stdout), nil
}

// WellKnownPaths globs installation directories on a filesystem
type WellKnownPaths struct {
	Fs       afero.Fs
	Patterns []string
}

func (s WellKnownPaths) Name() string { return "well-known" }

// Candidates returns every regular file matching one of the patterns
func (s WellKnownPaths) Candidates(context.Context) ([]string, error) {
	var found []string
	for _, pattern := range s.Patterns {
		matches, err := afero.Glob(s.Fs, pattern)
		if err != nil {
			return found, err
		}
		for _, m := range matches {
			info, err := s.Fs.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			found = append(found, m)
		}
	}
	return found, nil
}

// DefaultPatterns returns the usual JDK install locations for goos.
// home replaces a leading ~ in per-user locations.
func DefaultPatterns(goos, home string) []string {
	var patterns []string
	switch goos {
	case "windows":
		for _, root := range []string{`C:\Program Files`, `C:\Program Files (x86)`} {
			patterns = append(patterns,
				root+`\Java\*\bin\java.exe`,
				root+`\Eclipse Adoptium\*\bin\java.exe`,
				root+`\Microsoft\jdk-*\bin\java.exe`,
				root+`\Zulu\*\bin\java.exe`,
			)
		}
	case "darwin":
		patterns = []string{
			"/Library/Java/JavaVirtualMachines/*/Contents/Home/bin/java",
			"/opt/homebrew/opt/openjdk*/bin/java",
			"/usr/local/opt/openjdk*/bin/java",
			"~/Library/Java/JavaVirtualMachines/*/Contents/Home/bin/java",
		}
	default:
		patterns = []string{
			"/usr/lib/jvm/*/bin/java",
			"/usr/lib64/jvm/*/bin/java",
			"/usr/java/*/bin/java",
			"/opt/java/*/bin/java",
			"/opt/jdk*/bin/java",
			"/opt/openjdk-bin-*/bin/java",
			"~/.sdkman/candidates/java/*/bin/java",
			"~/.jdks/*/bin/java",
		}
	}

	if home == "" {
		return patterns
	}
	for i, p := range patterns {
		if strings.HasPrefix(p, "~/") {
			patterns[i] = filepath.Join(home, filepath.FromSlash(p[2:]))
		}
	}
	return patterns
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// userHome returns the home directory or "" when it cannot be determined
func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}
