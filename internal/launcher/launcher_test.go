package launcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/emotionice/treexlauncher/internal/common/command"
	"github.com/emotionice/treexlauncher/internal/common/config"
	"github.com/emotionice/treexlauncher/internal/common/github"
	"github.com/emotionice/treexlauncher/internal/jre"
	"github.com/emotionice/treexlauncher/internal/status"
	"github.com/emotionice/treexlauncher/internal/update"
)

const readyScript = `echo "booting"
echo "TreeX initialized"
exec sleep 30`

// fakeSource answers Fetch with a fixed artifact or error
type fakeSource struct {
	artifact update.RemoteArtifact
	err      error
	fetches  int32
}

func (s *fakeSource) Key() string { return "fake" }

func (s *fakeSource) Fetch(context.Context, string) (update.RemoteArtifact, string, error) {
	atomic.AddInt32(&s.fetches, 1)
	return s.artifact, "", s.err
}

// infoRecorder records states and panel rows
type infoRecorder struct {
	status.Recorder
	mu   sync.Mutex
	rows map[int]string
}

func (r *infoRecorder) SetInfo(row int, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows == nil {
		r.rows = make(map[int]string)
	}
	r.rows[row] = value
}

func (r *infoRecorder) row(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[n]
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake runtime is a POSIX shell script")
	}
}

// fakeJava writes a shell script standing in for java and a resolver that
// reports it as Java 17
func fakeJava(t *testing.T, script string) (string, *jre.Resolver) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "java")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755); err != nil {
		t.Fatal(err)
	}

	runner := command.NewMockRunner("")
	runner.RunFunc = func(_ context.Context, name string, _ ...string) (command.Result, error) {
		if name == path {
			return command.Result{Stderr: `openjdk version "17.0.2" 2022-01-18`}, nil
		}
		return command.Result{ExitCode: 1}, command.ErrCommand
	}
	return path, jre.NewResolver(jre.Options{
		Required: 17,
		Explicit: path,
		Runner:   runner,
		Fs:       afero.NewMemMapFs(),
		GOOS:     "linux",
		Home:     "/home/treex",
	})
}

// artifactServer serves body at /TreeX.jar
func artifactServer(t *testing.T, body []byte) (*httptest.Server, *int32) {
	t.Helper()
	var downloads int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/TreeX.jar" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&downloads, 1)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &downloads
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Install.Dir = t.TempDir()
	cfg.Update.Retries = 0
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, src update.Source, script string) (*App, *infoRecorder) {
	t.Helper()
	skipOnWindows(t)

	_, resolver := fakeJava(t, script)
	rec := &infoRecorder{}
	app, err := New(context.Background(), Options{
		Config:   cfg,
		Surface:  rec,
		Resolver: resolver,
		Source:   src,
		StateDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app, rec
}

// waitState polls the recorder until state shows up
func waitState(t *testing.T, rec *infoRecorder, state status.State) status.Entry {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range rec.Entries() {
			if e.State == state {
				return e
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("state %q never shown, got %v", state, rec.States())
	return status.Entry{}
}

func TestNewFailsWithoutRuntime(t *testing.T) {
	runner := command.NewMockRunner("")
	runner.RunFunc = func(context.Context, string, ...string) (command.Result, error) {
		return command.Result{ExitCode: 1}, command.ErrCommand
	}
	rec := &status.Recorder{}

	_, err := New(context.Background(), Options{
		Config:  testConfig(t),
		Surface: rec,
		Resolver: jre.NewResolver(jre.Options{
			Required: 17,
			Runner:   runner,
			Fs:       afero.NewMemMapFs(),
			GOOS:     "linux",
			Home:     "/home/treex",
		}),
		StateDir: t.TempDir(),
	})
	if !errors.Is(err, jre.ErrNoRuntime) {
		t.Fatalf("expected ErrNoRuntime, got %v", err)
	}
	if len(rec.Entries()) != 0 {
		t.Errorf("nothing should be shown before the runtime is resolved, got %v", rec.States())
	}
}

func TestStartupUpdatesThenAutoLaunches(t *testing.T) {
	body := []byte("PK\x03\x04 treex")
	srv, downloads := artifactServer(t, body)

	cfg := testConfig(t)
	cfg.Launch.Auto = true
	src := &fakeSource{artifact: update.RemoteArtifact{
		Name:        "TreeX.jar",
		ID:          "xyz789",
		DownloadURL: srv.URL + "/TreeX.jar",
		Size:        int64(len(body)),
	}}
	app, rec := newTestApp(t, cfg, src, readyScript)

	app.Start(context.Background())
	waitState(t, rec, status.StateInitialized)

	states := rec.States()
	want := []status.State{status.StateChecking, status.StateUpdated, status.StateLaunching, status.StateInitialized}
	if len(states) < len(want) {
		t.Fatalf("states = %v", states)
	}
	for i, s := range want {
		if states[i] != s {
			t.Fatalf("states = %v, want prefix %v", states, want)
		}
	}

	if *downloads != 1 {
		t.Errorf("expected one download, got %d", *downloads)
	}
	marker, err := os.ReadFile(filepath.Join(cfg.Install.Dir, cfg.Install.Marker))
	if err != nil || strings.TrimSpace(string(marker)) != "xyz789" {
		t.Errorf("marker = %q, %v", marker, err)
	}
	if !app.Supervisor().Running() {
		t.Fatal("process should be running")
	}
	if rec.row(status.RowPID) != fmt.Sprint(app.Supervisor().PID()) {
		t.Errorf("PID row = %q, want %d", rec.row(status.RowPID), app.Supervisor().PID())
	}
	if rec.row(status.RowVersion) != "xyz789" {
		t.Errorf("version row = %q", rec.row(status.RowVersion))
	}
	if !strings.HasSuffix(rec.row(status.RowArtifact), "TreeX.jar") {
		t.Errorf("artifact row = %q", rec.row(status.RowArtifact))
	}

	if err := app.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitState(t, rec, status.StateStopped)
	if app.Supervisor().Running() {
		t.Error("process should be gone after Stop")
	}
}

func TestUpToDateWithoutArtifactDoesNotLaunch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Launch.Auto = true
	if err := update.WriteMarker(filepath.Join(cfg.Install.Dir, cfg.Install.Marker), "abc123"); err != nil {
		t.Fatal(err)
	}
	src := &fakeSource{artifact: update.RemoteArtifact{Name: "TreeX.jar", ID: "abc123", DownloadURL: "http://127.0.0.1:1/never"}}
	app, rec := newTestApp(t, cfg, src, readyScript)

	app.Start(context.Background())

	last, _ := rec.Last()
	if last.State != status.StateReady || last.Detail != "no artifact installed" {
		t.Errorf("last entry = %+v", last)
	}
	states := rec.States()
	if states[0] != status.StateChecking || states[1] != status.StateUpToDate {
		t.Errorf("states = %v", states)
	}
	if app.Supervisor().Running() {
		t.Error("nothing should run without an artifact")
	}
	if app.LastUpdate().Status != update.StatusUpToDate {
		t.Errorf("last update = %v", app.LastUpdate().Status)
	}
}

func TestUpdateFailureIsReported(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{err: fmt.Errorf("%w: resets at 12:00", github.ErrRateLimit)}
	app, rec := newTestApp(t, cfg, src, readyScript)

	res := app.Update(context.Background())
	if res.Status != update.StatusFailed || !errors.Is(res.Reason, github.ErrRateLimit) {
		t.Fatalf("result = %+v", res)
	}
	last, _ := rec.Last()
	if last.State != status.StateUpdateFailed || last.Detail != "rate limited by GitHub" {
		t.Errorf("last entry = %+v", last)
	}
}

func TestForceUpdateDownloadsAgain(t *testing.T) {
	body := []byte("PK fresh")
	srv, downloads := artifactServer(t, body)

	cfg := testConfig(t)
	src := &fakeSource{artifact: update.RemoteArtifact{Name: "TreeX.jar", ID: "abc123", DownloadURL: srv.URL + "/TreeX.jar"}}
	app, _ := newTestApp(t, cfg, src, readyScript)

	if res := app.Update(context.Background()); res.Status != update.StatusUpdated {
		t.Fatalf("first update = %+v", res)
	}
	if res := app.Update(context.Background()); res.Status != update.StatusUpToDate {
		t.Fatalf("second update = %+v", res)
	}
	if res := app.ForceUpdate(context.Background()); res.Status != update.StatusUpdated {
		t.Fatalf("forced update = %+v", res)
	}
	if *downloads != 2 {
		t.Errorf("expected 2 downloads, got %d", *downloads)
	}
}

func TestStopWhenIdleIsNoOp(t *testing.T) {
	app, rec := newTestApp(t, testConfig(t), &fakeSource{}, readyScript)

	for i := 0; i < 2; i++ {
		if err := app.Stop(); err != nil {
			t.Fatalf("Stop #%d: %v", i+1, err)
		}
	}
	for _, s := range rec.States() {
		if s != status.StateStopped {
			t.Errorf("unexpected state %s", s)
		}
	}
}

func TestProcessExitIsReported(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.Install.Dir, "TreeX.jar"), []byte("PK"), 0644); err != nil {
		t.Fatal(err)
	}
	app, rec := newTestApp(t, cfg, &fakeSource{}, "exit 3")

	if err := app.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	e := waitState(t, rec, status.StateExited)
	if !strings.Contains(e.Detail, "3") {
		t.Errorf("exit detail = %q", e.Detail)
	}
}

func TestRestartKeepsOneProcess(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.Install.Dir, "TreeX.jar"), []byte("PK"), 0644); err != nil {
		t.Fatal(err)
	}
	app, rec := newTestApp(t, cfg, &fakeSource{}, readyScript)

	if err := app.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	first := app.Supervisor().PID()
	if err := app.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	second := app.Supervisor().PID()
	if first == 0 || second == 0 || first == second {
		t.Fatalf("pids before/after restart: %d, %d", first, second)
	}
	waitState(t, rec, status.StateInitialized)
}

func TestNewSource(t *testing.T) {
	cfg := config.Default()
	cfg.Source.Path = "dist"
	cfg.Source.Branch = "main"

	src, err := NewSource(cfg)
	if err != nil {
		t.Fatal(err)
	}
	contents, ok := src.(*update.ContentsSource)
	if !ok {
		t.Fatalf("expected ContentsSource, got %T", src)
	}
	if contents.Path != "dist" || contents.Ref != "main" || contents.Extension != ".jar" {
		t.Errorf("contents source = %+v", contents)
	}
	if contents.Client.BaseURL != cfg.Source.APIURL {
		t.Errorf("base URL = %s", contents.Client.BaseURL)
	}

	cfg.Source.Kind = config.SourceReleases
	if src, err = NewSource(cfg); err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*update.ReleaseSource); !ok {
		t.Errorf("expected ReleaseSource, got %T", src)
	}

	cfg.Source.Kind = config.SourcePage
	cfg.Source.PageURL = "https://treex.example.org/download/"
	cfg.Source.XPath = "//a[@class='dl']"
	if src, err = NewSource(cfg); err != nil {
		t.Fatal(err)
	}
	page, ok := src.(*update.PageSource)
	if !ok {
		t.Fatalf("expected PageSource, got %T", src)
	}
	if page.URL != cfg.Source.PageURL || page.XPath != cfg.Source.XPath {
		t.Errorf("page source = %+v", page)
	}

	cfg.Source.Kind = "tags"
	if _, err := NewSource(cfg); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
}

func TestTokenHostsFollowAPIURL(t *testing.T) {
	tests := []struct {
		name      string
		apiURL    string
		api       string
		downloads []string
	}{
		{"github.com", "https://api.github.com", "api.github.com",
			[]string{"api.github.com", "github.com", "raw.githubusercontent.com"}},
		{"empty falls back", "", "api.github.com",
			[]string{"api.github.com", "github.com", "raw.githubusercontent.com"}},
		{"enterprise", "https://ghe.example.com/api/v3", "ghe.example.com",
			[]string{"ghe.example.com"}},
		{"enterprise with port", "https://ghe.example.com:8443/api/v3", "ghe.example.com:8443",
			[]string{"ghe.example.com:8443"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Source.APIURL = tt.apiURL
			if got := apiHost(cfg); got != tt.api {
				t.Errorf("apiHost = %q, want %q", got, tt.api)
			}
			if got := downloadTokenHosts(cfg); strings.Join(got, ",") != strings.Join(tt.downloads, ",") {
				t.Errorf("downloadTokenHosts = %v, want %v", got, tt.downloads)
			}
		})
	}
}

func TestTokenSentToEnterpriseAPI(t *testing.T) {
	var gotAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		http.NotFound(w, r)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Source.APIURL = server.URL
	cfg.Source.Token = "ghp_enterprise"
	cfg.Update.Retries = 0

	src, err := NewSource(cfg)
	if err != nil {
		t.Fatal(err)
	}
	_, _, _ = src.Fetch(context.Background(), "")

	if got, _ := gotAuth.Load().(string); got != "Bearer ghp_enterprise" {
		t.Errorf("Authorization = %q, want the configured token", got)
	}
}
