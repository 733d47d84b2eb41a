package main

import (
	"github.com/spf13/cobra"
)

var (
	launchWait       bool
	launchSkipUpdate bool
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Update and launch without the panel",
	Long: `Runs the startup sequence with console output: check for updates, then
launch the installed artifact.

With --wait the launcher stays in the foreground until the process exits.
Ctrl+C stops the whole process tree.

Examples:
  treexlauncher launch --wait
  treexlauncher launch --skip-update --wait`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()
		runHeadless(ctx, headlessOptions{skipUpdate: launchSkipUpdate, wait: launchWait, launch: true})
	},
}

func init() {
	launchCmd.Flags().BoolVar(&launchWait, "wait", false, "Block until the process exits or is interrupted")
	launchCmd.Flags().BoolVar(&launchSkipUpdate, "skip-update", false, "Launch the installed artifact without checking")
	rootCmd.AddCommand(launchCmd)
}
