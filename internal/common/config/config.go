package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var (
	ErrRepositoryNotSet    = errors.New("source repository is not configured")
	ErrInvalidRepository   = errors.New("source repository must be in owner/name form")
	ErrInvalidSourceKind   = errors.New("source kind must be 'contents', 'releases' or 'page'")
	ErrPageURLNotSet       = errors.New("source page_url is not configured")
	ErrInvalidExtension    = errors.New("artifact extension must start with '.'")
	ErrInvalidRuntimeMajor = errors.New("runtime major version must be positive")
)

// Source kinds
const (
	SourceContents = "contents"
	SourceReleases = "releases"
	SourcePage     = "page"
)

// Config represents the launcher configuration
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Install InstallConfig `yaml:"install"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Launch  LaunchConfig  `yaml:"launch"`
	Update  UpdateConfig  `yaml:"update"`
}

// SourceConfig describes where the artifact is published
type SourceConfig struct {
	Kind       string `yaml:"kind"`               // "contents", "releases" or "page"
	Repository string `yaml:"repository"`         // owner/name
	Path       string `yaml:"path,omitempty"`     // directory inside the repository (contents only)
	Branch     string `yaml:"branch,omitempty"`   // ref to read (contents only)
	Extension  string `yaml:"extension"`          // artifact file extension
	Token      string `yaml:"token,omitempty"`    // GitHub token, ${VAR} allowed
	APIURL     string `yaml:"api_url,omitempty"`  // GitHub API base URL
	PageURL    string `yaml:"page_url,omitempty"` // HTML download page (page only)
	Selector   string `yaml:"selector,omitempty"` // CSS selector of the download link (page only)
	XPath      string `yaml:"xpath,omitempty"`    // XPath of the download link, instead of selector
}

// InstallConfig holds local artifact settings
type InstallConfig struct {
	Dir    string `yaml:"dir"`
	Marker string `yaml:"marker"`
}

// RuntimeConfig holds Java runtime discovery settings
type RuntimeConfig struct {
	Major      int      `yaml:"major"`
	AllowNewer bool     `yaml:"allow_newer,omitempty"`
	Path       string   `yaml:"path,omitempty"`
	ExtraPaths []string `yaml:"extra_paths,omitempty"`
	JVMArgs    []string `yaml:"jvm_args,omitempty"`
}

// LaunchConfig holds supervisor settings
type LaunchConfig struct {
	Auto            bool          `yaml:"auto"`
	ReadinessMarker string        `yaml:"readiness_marker"`
	ReadyTimeout    time.Duration `yaml:"ready_timeout,omitempty"`
}

// UpdateConfig holds update check settings
type UpdateConfig struct {
	OnStart bool          `yaml:"on_start"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Retries int           `yaml:"retries"`
}

// Default returns the configuration written on first run
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Kind:       SourceContents,
			Repository: "EmotionIce/TreeX-Launcher",
			Extension:  ".jar",
			APIURL:     "https://api.github.com",
		},
		Install: InstallConfig{
			Dir:    "~/.local/share/treexlauncher",
			Marker: ".treex-version",
		},
		Runtime: RuntimeConfig{
			Major: 17,
		},
		Launch: LaunchConfig{
			Auto:            false,
			ReadinessMarker: "TreeX initialized",
		},
		Update: UpdateConfig{
			OnStart: true,
			Timeout: 30 * time.Second,
			Retries: 3,
		},
	}
}

// ConfigDir returns the launcher config directory (XDG standard)
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	return filepath.Join(xdgConfig, "treexlauncher"), nil
}

// StateDir returns the directory for caches and other runtime state
func StateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	xdgState := os.Getenv("XDG_STATE_HOME")
	if xdgState == "" {
		xdgState = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(xdgState, "treexlauncher"), nil
}

// ConfigPaths returns all possible config file paths in priority order
// 1. ~/.config/treexlauncher/config.yaml (XDG standard - priority)
// 2. ~/.treexlauncher/config.yaml (legacy fallback)
func ConfigPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(home, ".treexlauncher", "config.yaml"),
	}, nil
}

// FindConfigPath returns the first existing config file path.
// Returns the default path if no config file exists yet.
func FindConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return paths[0], nil
}

// Load reads configuration from the first available config file
func Load() (*Config, error) {
	configPath, err := FindConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom reads configuration from a specific file path. A missing file
// is created with defaults. Fields left empty in the file take defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if saveErr := cfg.SaveTo(path); saveErr != nil {
				return nil, saveErr
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// SaveTo writes configuration to a specific file path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// fillDefaults restores defaults for fields explicitly emptied in the file
func (c *Config) fillDefaults() {
	def := Default()
	if c.Source.Kind == "" {
		c.Source.Kind = def.Source.Kind
	}
	if c.Source.Extension == "" {
		c.Source.Extension = def.Source.Extension
	}
	if c.Source.APIURL == "" {
		c.Source.APIURL = def.Source.APIURL
	}
	if c.Install.Dir == "" {
		c.Install.Dir = def.Install.Dir
	}
	if c.Install.Marker == "" {
		c.Install.Marker = def.Install.Marker
	}
	if c.Update.Timeout <= 0 {
		c.Update.Timeout = def.Update.Timeout
	}
	if c.Update.Retries < 0 {
		c.Update.Retries = 0
	}
}

// Validate checks the fields the launcher cannot work without
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceContents, SourceReleases:
		repo := strings.TrimSpace(c.Source.Repository)
		if repo == "" {
			return ErrRepositoryNotSet
		}
		if parts := strings.Split(repo, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("%w: %q", ErrInvalidRepository, repo)
		}
	case SourcePage:
		if strings.TrimSpace(c.Source.PageURL) == "" {
			return ErrPageURLNotSet
		}
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidSourceKind, c.Source.Kind)
	}
	if !strings.HasPrefix(c.Source.Extension, ".") {
		return fmt.Errorf("%w: got %q", ErrInvalidExtension, c.Source.Extension)
	}
	if c.Runtime.Major <= 0 {
		return ErrInvalidRuntimeMajor
	}
	return nil
}

// InstallDir returns the install directory with ~ expanded
func (c *Config) InstallDir() (string, error) {
	return ExpandHome(c.Install.Dir)
}

// MarkerPath returns the path of the persisted version marker
func (c *Config) MarkerPath() (string, error) {
	dir, err := c.InstallDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Install.Marker), nil
}

// ExpandHome expands a leading ~ to the user's home directory
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}

// RuntimesFile lists additional well-known runtime locations
type RuntimesFile struct {
	Paths []string `toml:"paths"`
}

// LoadRuntimePaths reads runtimes.toml from dir. A missing file yields no paths.
func LoadRuntimePaths(dir string) ([]string, error) {
	path := filepath.Join(dir, "runtimes.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var rf RuntimesFile
	if err := toml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse runtimes.toml: %w", err)
	}

	paths := make([]string, 0, len(rf.Paths))
	for _, p := range rf.Paths {
		expanded, err := ExpandHome(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		if expanded != "" {
			paths = append(paths, expanded)
		}
	}
	return paths, nil
}
