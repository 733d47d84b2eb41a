package main

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"

	"github.com/emotionice/treexlauncher/internal/common/config"
)

// TestSubcommandsExist tests that every subcommand is registered on the root
func TestSubcommandsExist(t *testing.T) {
	want := []string{"update", "launch", "runtime", "config", "version"}
	for _, name := range want {
		t.Run(name, func(t *testing.T) {
			cmd, _, err := rootCmd.Find([]string{name})
			if err != nil || cmd == rootCmd {
				t.Errorf("%s subcommand should exist", name)
			}
		})
	}
}

// TestGlobalFlags tests that the persistent flags are present
func TestGlobalFlags(t *testing.T) {
	tests := []struct {
		name      string
		shorthand string
	}{
		{"verbose", "v"},
		{"quiet", "q"},
		{"no-color", ""},
		{"config", ""},
		{"java", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := rootCmd.PersistentFlags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("root command should have --%s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("--%s shorthand = %q, want %q", tt.name, flag.Shorthand, tt.shorthand)
			}
		})
	}
}

// TestCommandFlags tests the flags of each subcommand
func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd  *cobra.Command
		flag string
	}{
		{rootCmd, "headless"},
		{updateCmd, "force"},
		{launchCmd, "wait"},
		{launchCmd, "skip-update"},
		{configCmd, "init"},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.Name()+"/"+tt.flag, func(t *testing.T) {
			if tt.cmd.Flags().Lookup(tt.flag) == nil {
				t.Errorf("%s command should have --%s flag", tt.cmd.Name(), tt.flag)
			}
		})
	}
}

// TestCommandDescriptions tests that every command documents itself
func TestCommandDescriptions(t *testing.T) {
	for _, cmd := range []*cobra.Command{rootCmd, updateCmd, launchCmd, runtimeCmd, configCmd, versionCmd} {
		if cmd.Short == "" {
			t.Errorf("%s command should have a short description", cmd.Name())
		}
		if cmd.Run == nil {
			t.Errorf("%s command should have a Run function", cmd.Name())
		}
	}
}

func TestCommandsRejectArguments(t *testing.T) {
	for _, cmd := range []*cobra.Command{rootCmd, updateCmd, launchCmd, runtimeCmd, configCmd} {
		if err := cmd.Args(cmd, []string{"extra"}); err == nil {
			t.Errorf("%s should reject positional arguments", cmd.Name())
		}
	}
}

func TestRequiredLabel(t *testing.T) {
	if got := requiredLabel(17, false); got != "17" {
		t.Errorf("got %q", got)
	}
	if got := requiredLabel(17, true); got != "17 or newer" {
		t.Errorf("got %q", got)
	}
}

func TestSourceLabel(t *testing.T) {
	cfg := config.Default()
	if got := sourceLabel(cfg); got != "EmotionIce/TreeX-Launcher (contents)" {
		t.Errorf("got %q", got)
	}
	cfg.Source.Kind = config.SourcePage
	cfg.Source.PageURL = "https://treex.example.org/"
	if got := sourceLabel(cfg); got != "https://treex.example.org/ (page)" {
		t.Errorf("got %q", got)
	}
}

func TestEffectiveConfigPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")

	configPath = "/tmp/custom.yaml"
	defer func() { configPath = "" }()
	if got, err := effectiveConfigPath(); err != nil || got != "/tmp/custom.yaml" {
		t.Errorf("--config should win, got %q, %v", got, err)
	}

	configPath = ""
	got, err := effectiveConfigPath()
	if err != nil || got == "" {
		t.Errorf("default path = %q, %v", got, err)
	}
}

func TestSignalContextCancels(t *testing.T) {
	ctx, cancel := signalContext()
	cancel()
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Errorf("ctx.Err() = %v", ctx.Err())
	}
}
