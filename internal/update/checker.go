package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/emotionice/treexlauncher/internal/common/github"
	"github.com/emotionice/treexlauncher/internal/common/httpclient"
	"github.com/emotionice/treexlauncher/internal/common/logger"
	"github.com/emotionice/treexlauncher/internal/common/version"
)

var (
	// ErrDownloadFailed is returned when the artifact could not be fetched completely
	ErrDownloadFailed = errors.New("download failed")
	// ErrNoLocalArtifact is returned when the install directory holds no artifact
	ErrNoLocalArtifact = errors.New("no local artifact")
)

// Status is the outcome of a check
type Status int

const (
	StatusUpToDate Status = iota
	StatusUpdated
	StatusFailed
)

// String returns a human-readable status
func (s Status) String() string {
	switch s {
	case StatusUpToDate:
		return "up to date"
	case StatusUpdated:
		return "updated"
	default:
		return "failed"
	}
}

// UpdateResult reports what CheckAndUpdate did
type UpdateResult struct {
	Status   Status
	LocalID  string // marker before the check, "" when absent
	RemoteID string
	Artifact string // local artifact path, set once the remote artifact is known
	CacheHit bool   // descriptor answered 304 and the cached copy was used
	Reason   error  // set when Status is StatusFailed
}

// Checker compares the version marker with the remote identifier and
// downloads the artifact on mismatch.
type Checker struct {
	source     Source
	installDir string
	markerPath string
	extension  string
	downloader *httpclient.Client
	cache      *DescriptorCache
}

// Option configures a Checker
type Option func(*Checker)

// WithCache enables conditional descriptor requests
func WithCache(cache *DescriptorCache) Option {
	return func(c *Checker) {
		c.cache = cache
	}
}

// WithDownloader sets the client used for artifact downloads
func WithDownloader(client *httpclient.Client) Option {
	return func(c *Checker) {
		c.downloader = client
	}
}

// NewChecker creates a checker installing into installDir.
// extension selects which files count as stale artifacts.
func NewChecker(source Source, installDir, markerPath, extension string, opts ...Option) *Checker {
	c := &Checker{
		source:     source,
		installDir: installDir,
		markerPath: markerPath,
		extension:  extension,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.downloader == nil {
		c.downloader = NewDownloadClient(httpclient.DefaultRetryConfig().MaxRetries)
	}
	return c
}

// NewDownloadClient returns a retrying client without an overall timeout;
// downloads are bounded by the caller's context only.
func NewDownloadClient(retries int, opts ...httpclient.Option) *httpclient.Client {
	config := httpclient.DefaultRetryConfig()
	config.MaxRetries = retries
	config.Timeout = 0
	opts = append([]httpclient.Option{httpclient.WithHeader("User-Agent", version.UserAgent())}, opts...)
	return httpclient.New(config, opts...)
}

// CheckAndUpdate downloads the remote artifact when its identifier differs
// from the marker. It never returns an error; failures are reported in the
// result and leave the installed artifact and marker untouched.
func (c *Checker) CheckAndUpdate(ctx context.Context) UpdateResult {
	return c.check(ctx, false)
}

// ForceUpdate downloads the remote artifact regardless of the marker and
// the descriptor cache.
func (c *Checker) ForceUpdate(ctx context.Context) UpdateResult {
	return c.check(ctx, true)
}

func (c *Checker) check(ctx context.Context, force bool) UpdateResult {
	var res UpdateResult

	local, err := ReadMarker(c.markerPath)
	if err != nil {
		return failed(res, err)
	}
	res.LocalID = local

	remote, hit, err := c.fetch(ctx, force)
	if err != nil {
		return failed(res, err)
	}
	res.RemoteID = remote.ID
	res.CacheHit = hit

	name := artifactFileName(remote.Name)
	if name == "" {
		return failed(res, fmt.Errorf("%w: invalid artifact name %q", ErrNoArtifact, remote.Name))
	}
	res.Artifact = filepath.Join(c.installDir, name)

	if !force && local == remote.ID {
		logger.Debug("Artifact %s is up to date (%s)", name, remote.ID)
		res.Status = StatusUpToDate
		return res
	}

	logger.Info("Downloading %s (%s -> %s)", name, displayID(local), remote.ID)
	start := time.Now()
	tmpPath, err := c.download(ctx, remote)
	if err != nil {
		return failed(res, err)
	}
	defer os.Remove(tmpPath)
	if err := c.install(tmpPath, res.Artifact, remote.ID); err != nil {
		return failed(res, err)
	}
	logger.Debug("Downloaded %s in %s", name, time.Since(start).Round(time.Millisecond))

	c.removeStale(name)

	res.Status = StatusUpdated
	return res
}

func failed(res UpdateResult, err error) UpdateResult {
	res.Status = StatusFailed
	res.Reason = err
	return res
}

func displayID(id string) string {
	if id == "" {
		return "none"
	}
	return id
}

// fetch returns the remote artifact, using the cached descriptor on 304
func (c *Checker) fetch(ctx context.Context, force bool) (RemoteArtifact, bool, error) {
	key := c.source.Key()

	var cached CacheEntry
	var ok bool
	switch {
	case c.cache == nil:
	case force:
		// a forced check must not fall back to a stale descriptor
		if err := c.cache.Delete(key); err != nil {
			logger.Warn("Could not drop cached descriptor: %v", err)
		}
	default:
		cached, ok = c.cache.Get(key)
	}
	etag := ""
	if ok {
		etag = cached.ETag
	}

	remote, newETag, err := c.source.Fetch(ctx, etag)
	if errors.Is(err, github.ErrNotModified) {
		if ok {
			logger.Debug("Descriptor not modified, using cached %s", cached.Artifact.Name)
			return cached.Artifact, true, nil
		}
		return RemoteArtifact{}, false, fmt.Errorf("%w: 304 without a cached descriptor", github.ErrAPIError)
	}
	if err != nil {
		return RemoteArtifact{}, false, err
	}

	if c.cache != nil && newETag != "" {
		if err := c.cache.Set(key, newETag, remote); err != nil {
			logger.Warn("Could not save descriptor cache: %v", err)
		}
	}
	return remote, false, nil
}

// download writes the artifact to a temporary file in the install
// directory and returns its path. The caller removes it.
func (c *Checker) download(ctx context.Context, remote RemoteArtifact) (string, error) {
	if err := os.MkdirAll(c.installDir, 0755); err != nil {
		return "", err
	}

	resp, err := c.downloader.Get(ctx, remote.DownloadURL, map[string]string{"Accept": "application/octet-stream"})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(c.installDir, ".treex-download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	complete := false
	defer func() {
		if !complete {
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if remote.Size > 0 && n != remote.Size {
		tmp.Close()
		return "", fmt.Errorf("%w: got %d of %d bytes", ErrDownloadFailed, n, remote.Size)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	complete = true
	return tmpPath, nil
}

// install moves the downloaded file over target and records id in the
// marker. The previous artifact is kept aside until the marker is written
// and put back when any step fails.
func (c *Checker) install(tmpPath, target, id string) error {
	backup := target + ".bak"
	hadPrevious := false
	if _, err := os.Stat(target); err == nil {
		if err := os.Rename(target, backup); err != nil {
			return fmt.Errorf("back up artifact: %w", err)
		}
		hadPrevious = true
	}

	restore := func() {
		if !hadPrevious {
			os.Remove(target)
			return
		}
		if err := os.Rename(backup, target); err != nil {
			logger.Error("Could not restore %s from %s: %v", target, backup, err)
		}
	}

	if err := os.Rename(tmpPath, target); err != nil {
		restore()
		return fmt.Errorf("install artifact: %w", err)
	}
	if err := WriteMarker(c.markerPath, id); err != nil {
		restore()
		return err
	}
	if hadPrevious {
		if err := os.Remove(backup); err != nil {
			logger.Warn("Could not remove backup %s: %v", backup, err)
		}
	}
	return nil
}

// removeStale deletes other artifacts left by previous versions
func (c *Checker) removeStale(keep string) {
	entries, err := os.ReadDir(c.installDir)
	if err != nil {
		logger.Warn("Could not list %s: %v", c.installDir, err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == keep || !hasExtension(e.Name(), c.extension) {
			continue
		}
		path := filepath.Join(c.installDir, e.Name())
		if err := os.Remove(path); err != nil {
			logger.Warn("Could not remove outdated artifact %s: %v", path, err)
			continue
		}
		logger.Info("Removed outdated artifact %s", e.Name())
	}
}

// LocateArtifact returns the artifact in dir with the given extension.
// When several are present the lexically last one is used.
func LocateArtifact(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoLocalArtifact
		}
		return "", err
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && hasExtension(e.Name(), ext) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", ErrNoLocalArtifact
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
