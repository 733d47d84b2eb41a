package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/emotionice/treexlauncher/internal/common/config"
	"github.com/emotionice/treexlauncher/internal/common/github"
	"github.com/emotionice/treexlauncher/internal/common/logger"
	"github.com/emotionice/treexlauncher/internal/common/output"
	"github.com/emotionice/treexlauncher/internal/jre"
	"github.com/emotionice/treexlauncher/internal/launcher"
	"github.com/emotionice/treexlauncher/internal/status"
)

var (
	verbose    bool
	quiet      bool
	noColor    bool
	configPath string
	javaPath   string
	headless   bool
)

var rootCmd = &cobra.Command{
	Use:   "treexlauncher",
	Short: "Keep TreeX up to date and run it",
	Long: `Checks the release source for a newer TreeX build, installs it, and runs it
under supervision with a status panel.

Without a subcommand the interactive panel is shown. Use --headless to print
state changes to the console instead.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetVerbose(true)
		}
		if quiet {
			logger.SetQuiet(true)
		}
		if noColor {
			output.NoColor()
		}
		if err := logger.Default().EnableFileLogging(); err != nil {
			logger.Debug("File logging disabled: %v", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Default().Close()
	},
	Args: cobra.NoArgs,
	Run:  runRoot,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/treexlauncher/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&javaPath, "java", "", "Java runtime to use instead of discovery")

	rootCmd.Flags().BoolVar(&headless, "headless", false, "Print state changes instead of showing the panel")
}

// loadConfig reads --config or the default config file
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

// newApp loads config and resolves the runtime. Failures are fatal.
func newApp(ctx context.Context, surface status.Surface) (*config.Config, *launcher.App) {
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("loading config: %v", err)
		os.Exit(1)
	}

	var runtimePaths []string
	if dir, err := config.ConfigDir(); err == nil {
		if runtimePaths, err = config.LoadRuntimePaths(dir); err != nil {
			logger.Warn("%v", err)
		}
	}

	app, err := launcher.New(ctx, launcher.Options{
		Config:       cfg,
		Java:         javaPath,
		Surface:      surface,
		RuntimePaths: runtimePaths,
	})
	if err != nil {
		if errors.Is(err, jre.ErrNoRuntime) {
			output.PrintError("No Java %d runtime found. Install one or pass --java.", cfg.Runtime.Major)
			logger.Debug("%v", err)
		} else {
			logger.Error("%v", err)
		}
		os.Exit(1)
	}
	return cfg, app
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runRoot(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	if !headless && !output.IsTerminal() {
		logger.Info("stdout is not a terminal, running headless")
		headless = true
	}
	if headless {
		runHeadless(ctx, headlessOptions{wait: true})
		return
	}

	_, app := newApp(ctx, nil)
	defer app.Close()

	panel := status.NewPanel(status.Actions{
		Launch:  func() { app.Launch(ctx) },
		Stop:    func() { app.Stop() },
		Restart: func() { app.Restart(ctx) },
		Update:  func() { app.Update(ctx) },
		Quit:    func() { app.Close() },
	})
	app.SetSurface(panel)

	logger.Default().Detach(true)
	defer logger.Default().Detach(false)

	go app.Start(ctx)
	go func() {
		<-ctx.Done()
		panel.Stop()
	}()

	if err := panel.Run(); err != nil {
		logger.Error("status panel: %v", err)
		os.Exit(1)
	}
}

type headlessOptions struct {
	skipUpdate bool
	wait       bool
	// launch overrides launch.auto
	launch bool
}

// runHeadless runs the startup sequence with a console surface. With wait
// it blocks until the process exits or a signal arrives, then stops the
// tree. Without wait it returns once the process is initialized and leaves
// it running.
func runHeadless(ctx context.Context, opts headlessOptions) {
	cfg, app := newApp(ctx, status.NewConsole(nil))

	if opts.skipUpdate {
		cfg.Update.OnStart = false
	}
	if opts.launch {
		cfg.Launch.Auto = true
	}
	app.Start(ctx)

	sup := app.Supervisor()
	if !sup.Running() {
		app.Close()
		if cfg.Launch.Auto {
			output.PrintWarning("Nothing is running. Run 'treexlauncher update' to install the artifact.")
		}
		return
	}

	exited := make(chan error, 1)
	go func() { exited <- sup.Wait() }()

	if !opts.wait {
		var timeout <-chan time.Time
		if cfg.Launch.ReadyTimeout > 0 {
			timeout = time.After(cfg.Launch.ReadyTimeout)
		}
		if cfg.Launch.ReadinessMarker != "" {
			select {
			case <-sup.Ready():
			case <-exited:
				app.Close()
				os.Exit(1)
			case <-timeout:
			case <-ctx.Done():
			}
		}
		output.PrintInfo("Started pid %d", sup.PID())
		return
	}

	defer app.Close()
	select {
	case err := <-exited:
		if err != nil {
			logger.Debug("process exited: %v", err)
		}
	case <-ctx.Done():
		logger.Info("Interrupted, stopping process tree")
		if err := app.Stop(); err != nil {
			logger.Error("%v", err)
		}
	}
}

// reportUpdateError adds rate limit details when GitHub refused the request
func reportUpdateError(ctx context.Context, cfg *config.Config, err error) {
	if !errors.Is(err, github.ErrRateLimit) {
		output.PrintError("Update failed: %v", err)
		return
	}
	client := github.NewClient(cfg.Source.Repository, nil)
	client.BaseURL = cfg.Source.APIURL
	remaining, reset, rlErr := client.GetRateLimitInfo(ctx)
	if rlErr != nil {
		output.PrintError("Update failed: %v", err)
		return
	}
	output.PrintError("GitHub rate limit exceeded (%d requests left, resets at %s). Set source.token to raise the limit.",
		remaining, reset.Local().Format(time.Kitchen))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
