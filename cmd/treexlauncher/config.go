package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emotionice/treexlauncher/internal/common/config"
	"github.com/emotionice/treexlauncher/internal/common/logger"
	"github.com/emotionice/treexlauncher/internal/common/output"
)

var configInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the configuration file in use",
	Long: `Prints the path of the effective configuration file and its main settings.

With --init the file is rewritten with default values.`,
	Args: cobra.NoArgs,
	Run:  runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configInit, "init", false, "Write the default configuration")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) {
	path, err := effectiveConfigPath()
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	if configInit {
		if err := config.Default().SaveTo(path); err != nil {
			logger.Error("writing %s: %v", path, err)
			os.Exit(1)
		}
		output.PrintSuccess("Wrote default configuration to %s", path)
		return
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
	installDir, err := cfg.InstallDir()
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	fmt.Println(output.Sprint(output.Header, path))
	output.KeyValue(os.Stdout, "source", sourceLabel(cfg))
	output.KeyValue(os.Stdout, "install", installDir)
	output.KeyValue(os.Stdout, "java", requiredLabel(cfg.Runtime.Major, cfg.Runtime.AllowNewer))
	output.KeyValue(os.Stdout, "auto", fmt.Sprint(cfg.Launch.Auto))
}

func effectiveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.FindConfigPath()
}

func sourceLabel(cfg *config.Config) string {
	if cfg.Source.Kind == config.SourcePage {
		return fmt.Sprintf("%s (page)", cfg.Source.PageURL)
	}
	return fmt.Sprintf("%s (%s)", cfg.Source.Repository, cfg.Source.Kind)
}
