// Package launcher wires the update checker, the process supervisor and a
// status surface into the launcher's startup sequence and user actions.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/emotionice/treexlauncher/internal/common/config"
	"github.com/emotionice/treexlauncher/internal/common/github"
	"github.com/emotionice/treexlauncher/internal/common/httpclient"
	"github.com/emotionice/treexlauncher/internal/common/logger"
	"github.com/emotionice/treexlauncher/internal/common/version"
	"github.com/emotionice/treexlauncher/internal/jre"
	"github.com/emotionice/treexlauncher/internal/status"
	"github.com/emotionice/treexlauncher/internal/supervisor"
	"github.com/emotionice/treexlauncher/internal/update"
)

// ErrUnknownSource is returned for a source kind the launcher cannot read
var ErrUnknownSource = errors.New("unknown source kind")

// Options configures New. Only Config is required.
type Options struct {
	Config *config.Config

	// Java overrides runtime.path from the config
	Java string
	// Surface defaults to a Console on stdout
	Surface status.Surface

	// Injection points; nil selects the real implementation
	Resolver *jre.Resolver
	Source   update.Source
	Tree     supervisor.Tree
	// StateDir holds the descriptor cache; empty uses config.StateDir
	StateDir string
	// RuntimePaths are extra well-known runtime globs (runtimes.toml)
	RuntimePaths []string
}

// infoPanel is implemented by surfaces that show process details
type infoPanel interface {
	SetInfo(row int, value string)
}

// App is one launcher session
type App struct {
	cfg        *config.Config
	runtime    jre.Runtime
	installDir string
	checker    *update.Checker
	sup        *supervisor.Supervisor

	mu      sync.Mutex
	surface status.Surface
	last    update.UpdateResult

	relayOnce    sync.Once
	relayStarted atomic.Bool
	closeOnce    sync.Once
	relayStop    chan struct{}
	relayDone    chan struct{}
}

// New resolves the Java runtime and builds the session. A missing runtime
// is fatal and returned as jre.ErrNoRuntime before anything is shown.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	resolver := opts.Resolver
	if resolver == nil {
		explicit := cfg.Runtime.Path
		if opts.Java != "" {
			explicit = opts.Java
		}
		resolver = jre.NewResolver(jre.Options{
			Required:      cfg.Runtime.Major,
			AllowNewer:    cfg.Runtime.AllowNewer,
			Explicit:      explicit,
			ExtraPatterns: append(append([]string(nil), cfg.Runtime.ExtraPaths...), opts.RuntimePaths...),
		})
	}
	rt, err := resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Using Java %s at %s", rt.Version, rt.Path)

	installDir, err := cfg.InstallDir()
	if err != nil {
		return nil, err
	}

	source := opts.Source
	if source == nil {
		if source, err = NewSource(cfg); err != nil {
			return nil, err
		}
	}
	checker, err := NewChecker(cfg, source, opts.StateDir)
	if err != nil {
		return nil, err
	}

	surface := opts.Surface
	if surface == nil {
		surface = status.NewConsole(nil)
	}

	ext := cfg.Source.Extension
	sup := supervisor.New(supervisor.Config{
		Runtime: rt.Path,
		JVMArgs: cfg.Runtime.JVMArgs,
		Artifact: func() string {
			path, err := update.LocateArtifact(installDir, ext)
			if err != nil {
				if !errors.Is(err, update.ErrNoLocalArtifact) {
					logger.Warn("Locating artifact: %v", err)
				}
				return ""
			}
			return path
		},
		ReadinessMarker: cfg.Launch.ReadinessMarker,
		ReadyTimeout:    cfg.Launch.ReadyTimeout,
		Tree:            opts.Tree,
	})

	return &App{
		cfg:        cfg,
		runtime:    rt,
		installDir: installDir,
		checker:    checker,
		sup:        sup,
		surface:    surface,
		relayStop:  make(chan struct{}),
		relayDone:  make(chan struct{}),
	}, nil
}

// NewSource builds the release source configured in cfg
func NewSource(cfg *config.Config) (update.Source, error) {
	retry := httpclient.DefaultRetryConfig()
	retry.MaxRetries = cfg.Update.Retries
	retry.Timeout = cfg.Update.Timeout

	transport := httpclient.New(retry,
		httpclient.WithHeader("User-Agent", version.UserAgent()),
		httpclient.WithHeader("Accept", "application/vnd.github+json"),
		httpclient.WithToken(cfg.Source.Token, apiHost(cfg)),
	)
	client := github.NewClient(cfg.Source.Repository, transport)
	if cfg.Source.APIURL != "" {
		client.BaseURL = cfg.Source.APIURL
	}

	switch cfg.Source.Kind {
	case config.SourceContents:
		return &update.ContentsSource{
			Client:    client,
			Path:      cfg.Source.Path,
			Ref:       cfg.Source.Branch,
			Extension: cfg.Source.Extension,
		}, nil
	case config.SourceReleases:
		return &update.ReleaseSource{Client: client, Extension: cfg.Source.Extension}, nil
	case config.SourcePage:
		return &update.PageSource{
			HTTP:      transport,
			URL:       cfg.Source.PageURL,
			Selector:  cfg.Source.Selector,
			XPath:     cfg.Source.XPath,
			Extension: cfg.Source.Extension,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Source.Kind)
	}
}

// NewChecker builds the update checker for cfg. An empty stateDir uses
// config.StateDir for the descriptor cache.
func NewChecker(cfg *config.Config, source update.Source, stateDir string) (*update.Checker, error) {
	installDir, err := cfg.InstallDir()
	if err != nil {
		return nil, err
	}
	markerPath, err := cfg.MarkerPath()
	if err != nil {
		return nil, err
	}

	downloader := update.NewDownloadClient(cfg.Update.Retries,
		httpclient.WithToken(cfg.Source.Token, downloadTokenHosts(cfg)...))
	opts := []update.Option{update.WithDownloader(downloader)}
	if cache := openCache(stateDir); cache != nil {
		opts = append(opts, update.WithCache(cache))
	}
	return update.NewChecker(source, installDir, markerPath, cfg.Source.Extension, opts...), nil
}

// openCache opens the descriptor cache; failures only disable caching
func openCache(stateDir string) *update.DescriptorCache {
	if stateDir == "" {
		dir, err := config.StateDir()
		if err != nil {
			logger.Debug("No state dir, descriptor cache disabled: %v", err)
			return nil
		}
		stateDir = dir
	}
	cache, err := update.NewDescriptorCache(stateDir)
	if err != nil {
		logger.Warn("Descriptor cache disabled: %v", err)
		return nil
	}
	logger.Debug("Descriptor cache in %s holds %d entries", stateDir, cache.Len())
	return cache
}

// githubDownloadHosts serve artifacts of private github.com repositories
var githubDownloadHosts = []string{"github.com", "raw.githubusercontent.com"}

// apiHost returns the host of the configured API URL, or api.github.com
func apiHost(cfg *config.Config) string {
	if cfg.Source.APIURL != "" {
		if u, err := url.Parse(cfg.Source.APIURL); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return "api.github.com"
}

// downloadTokenHosts lists the hosts artifact downloads may carry the
// token to. An Enterprise instance serves raw files from its API host.
func downloadTokenHosts(cfg *config.Config) []string {
	host := apiHost(cfg)
	if host != "api.github.com" {
		return []string{host}
	}
	return append([]string{host}, githubDownloadHosts...)
}

// Runtime returns the resolved Java runtime
func (a *App) Runtime() jre.Runtime { return a.runtime }

// Supervisor returns the process supervisor
func (a *App) Supervisor() *supervisor.Supervisor { return a.sup }

// InstallDir returns the artifact directory
func (a *App) InstallDir() string { return a.installDir }

// LastUpdate returns the most recent update result
func (a *App) LastUpdate() update.UpdateResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// SetSurface replaces the surface. Used when the panel is built after the App.
func (a *App) SetSurface(s status.Surface) {
	a.mu.Lock()
	a.surface = s
	a.mu.Unlock()
	a.refreshInfo()
}

func (a *App) show(state status.State, detail string) {
	a.mu.Lock()
	s := a.surface
	a.mu.Unlock()
	s.Show(state, detail)
}

func (a *App) setInfo(row int, value string) {
	a.mu.Lock()
	p, ok := a.surface.(infoPanel)
	a.mu.Unlock()
	if ok {
		p.SetInfo(row, value)
	}
}

// refreshInfo pushes process details to panels that show them
func (a *App) refreshInfo() {
	a.setInfo(status.RowRuntime, fmt.Sprintf("%s (%s)", a.runtime.Path, a.runtime.Version))
	artifact, _ := update.LocateArtifact(a.installDir, a.cfg.Source.Extension)
	a.setInfo(status.RowArtifact, artifact)
	a.setInfo(status.RowVersion, a.LastUpdate().RemoteID)

	info := a.sup.Info()
	pid := ""
	if info.Running {
		pid = fmt.Sprint(info.PID)
	}
	a.setInfo(status.RowPID, pid)
	a.setInfo(status.RowRunID, info.RunID)
}

// Start runs the startup sequence: relay supervisor events, check for
// updates when configured, then auto-launch when configured.
func (a *App) Start(ctx context.Context) {
	a.startRelay()

	if a.cfg.Update.OnStart {
		a.Update(ctx)
	} else {
		a.show(status.StateReady, "")
	}
	if a.cfg.Launch.Auto {
		a.Launch(ctx)
	}
}

// Update checks the source and installs a newer artifact. A running
// process keeps using the artifact it started with until restarted.
func (a *App) Update(ctx context.Context) update.UpdateResult {
	return a.runUpdate(ctx, false)
}

// ForceUpdate downloads the artifact regardless of the marker
func (a *App) ForceUpdate(ctx context.Context) update.UpdateResult {
	return a.runUpdate(ctx, true)
}

func (a *App) runUpdate(ctx context.Context, force bool) update.UpdateResult {
	a.show(status.StateChecking, "")

	var res update.UpdateResult
	if force {
		res = a.checker.ForceUpdate(ctx)
	} else {
		res = a.checker.CheckAndUpdate(ctx)
	}

	a.mu.Lock()
	a.last = res
	a.mu.Unlock()

	detail := res.RemoteID
	if res.Status == update.StatusFailed {
		logger.Error("Update failed: %v", res.Reason)
		detail = updateFailureDetail(res.Reason)
	}
	a.show(status.ForUpdate(res.Status), detail)
	a.refreshInfo()
	return res
}

// updateFailureDetail shortens the failure reason for the status line
func updateFailureDetail(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, github.ErrRateLimit):
		return "rate limited by GitHub"
	case errors.Is(err, update.ErrNoArtifact):
		return "no artifact published"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return err.Error()
	}
}

// Launch starts the artifact. Without an installed artifact it only
// reports Ready.
func (a *App) Launch(ctx context.Context) error {
	a.startRelay()
	a.show(status.StateLaunching, "")
	err := a.sup.Launch(ctx)
	a.afterLaunch(err)
	return err
}

// Restart stops the process tree and launches again
func (a *App) Restart(ctx context.Context) error {
	a.startRelay()
	a.show(status.StateLaunching, "restarting")
	err := a.sup.Restart(ctx)
	a.afterLaunch(err)
	return err
}

func (a *App) afterLaunch(err error) {
	switch {
	case err != nil:
		logger.Error("Launch failed: %v", err)
		a.show(status.StateStopped, err.Error())
	case !a.sup.Running():
		a.show(status.StateReady, "no artifact installed")
	}
	a.refreshInfo()
}

// Stop terminates the process tree. Stopping when nothing runs is a no-op.
func (a *App) Stop() error {
	if !a.sup.Running() {
		a.show(status.StateStopped, "")
		return nil
	}
	err := a.sup.Stop()
	if err != nil {
		logger.Warn("Stop: %v", err)
	}
	a.refreshInfo()
	return err
}

// Close stops the managed process and the event relay
func (a *App) Close() error {
	err := a.sup.Stop()
	a.closeOnce.Do(func() {
		close(a.relayStop)
		if a.relayStarted.Load() {
			<-a.relayDone
		}
	})
	return err
}

func (a *App) startRelay() {
	a.relayOnce.Do(func() {
		a.relayStarted.Store(true)
		go a.relay()
	})
}

// relay turns supervisor events into surface states
func (a *App) relay() {
	defer close(a.relayDone)
	for {
		select {
		case <-a.relayStop:
			a.drainEvents()
			return
		case e := <-a.sup.Events():
			a.handleEvent(e)
		}
	}
}

// drainEvents reports events emitted during shutdown
func (a *App) drainEvents() {
	for {
		select {
		case e := <-a.sup.Events():
			a.handleEvent(e)
		default:
			return
		}
	}
}

func (a *App) handleEvent(e supervisor.Event) {
	logger.Debug("Supervisor event %s (run %s, pid %d)", e.Type, e.RunID, e.PID)
	switch e.Type {
	case supervisor.EventLaunched:
		a.refreshInfo()
	case supervisor.EventInitialized:
		a.show(status.StateInitialized, fmt.Sprintf("pid %d", e.PID))
	case supervisor.EventReadyTimeout:
		logger.Warn("No readiness marker from pid %d yet", e.PID)
		a.show(status.StateLaunching, "still waiting for readiness")
	case supervisor.EventStopped:
		a.show(status.StateStopped, "")
		a.refreshInfo()
	case supervisor.EventExited:
		detail := "exit 0"
		if e.Err != nil {
			detail = e.Err.Error()
		}
		a.show(status.StateExited, detail)
		a.refreshInfo()
	}
}
