package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/emotionice/treexlauncher/internal/common/logger"
	"github.com/emotionice/treexlauncher/internal/launcher"
	"github.com/emotionice/treexlauncher/internal/status"
	"github.com/emotionice/treexlauncher/internal/update"
)

var updateForce bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check the release source and install a newer artifact",
	Long: `Compares the installed version marker with the remote identifier and
downloads the artifact when they differ. Nothing is launched.

Examples:
  treexlauncher update           Update when the remote artifact changed
  treexlauncher update --force   Download again, ignoring marker and cache`,
	Args: cobra.NoArgs,
	Run:  runUpdate,
}

func init() {
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "Ignore the version marker and descriptor cache")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("loading config: %v", err)
		os.Exit(1)
	}
	source, err := launcher.NewSource(cfg)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
	checker, err := launcher.NewChecker(cfg, source, "")
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	console := status.NewConsole(nil)
	console.Show(status.StateChecking, "")

	var res update.UpdateResult
	if updateForce {
		res = checker.ForceUpdate(ctx)
	} else {
		res = checker.CheckAndUpdate(ctx)
	}

	if res.Status == update.StatusFailed {
		console.Show(status.StateUpdateFailed, "")
		reportUpdateError(ctx, cfg, res.Reason)
		os.Exit(1)
	}
	console.Show(status.ForUpdate(res.Status), res.RemoteID)
	logger.Debug("artifact: %s", res.Artifact)
}
