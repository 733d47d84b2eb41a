package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emotionice/treexlauncher/internal/common/output"
)

var runtimeCmd = &cobra.Command{
	Use:   "runtime",
	Short: "Show the Java runtime that would be used",
	Args:  cobra.NoArgs,
	Run:   runRuntime,
}

func init() {
	rootCmd.AddCommand(runtimeCmd)
}

func runRuntime(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, app := newApp(ctx, nil)
	defer app.Close()

	rt := app.Runtime()
	output.KeyValue(os.Stdout, "path", rt.Path)
	output.KeyValue(os.Stdout, "version", rt.Version)
	output.KeyValue(os.Stdout, "major", fmt.Sprint(rt.Major))
	output.KeyValue(os.Stdout, "required", requiredLabel(cfg.Runtime.Major, cfg.Runtime.AllowNewer))
}

func requiredLabel(major int, allowNewer bool) string {
	if allowNewer {
		return fmt.Sprintf("%d or newer", major)
	}
	return fmt.Sprint(major)
}
