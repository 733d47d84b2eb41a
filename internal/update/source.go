package update

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/emotionice/treexlauncher/internal/common/github"
	"github.com/emotionice/treexlauncher/internal/common/logger"
)

// ErrNoArtifact is returned when the descriptor lists no matching artifact
var ErrNoArtifact = errors.New("no artifact in descriptor")

// RemoteArtifact describes the artifact a source currently publishes
type RemoteArtifact struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	DownloadURL string `json:"download_url"`
	Size        int64  `json:"size,omitempty"`
}

// Source fetches the remote descriptor and selects the artifact.
// Fetch passes github.ErrNotModified through when etag still matches.
type Source interface {
	Fetch(ctx context.Context, etag string) (RemoteArtifact, string, error)
	// Key identifies the descriptor in the cache
	Key() string
}

// ContentsSource reads a repository directory through the Contents API.
// The artifact identifier is the blob sha.
type ContentsSource struct {
	Client    *github.Client
	Path      string
	Ref       string
	Extension string
}

// Key returns the descriptor URL
func (s *ContentsSource) Key() string {
	return s.Client.ContentsURL(s.Path, s.Ref)
}

// Fetch lists the directory and returns the first entry with the extension
func (s *ContentsSource) Fetch(ctx context.Context, etag string) (RemoteArtifact, string, error) {
	entries, newETag, err := s.Client.ListContents(ctx, s.Path, s.Ref, etag)
	if err != nil {
		return RemoteArtifact{}, "", err
	}

	var matches []github.ContentEntry
	for _, e := range entries {
		if e.Type != "" && e.Type != "file" {
			continue
		}
		if hasExtension(e.Name, s.Extension) {
			matches = append(matches, e)
		}
	}

	if len(matches) == 0 {
		return RemoteArtifact{}, "", fmt.Errorf("%w: nothing matching *%s in %s", ErrNoArtifact, s.Extension, s.Key())
	}
	if len(matches) > 1 {
		logger.Debug("%d entries match *%s, using %s", len(matches), s.Extension, matches[0].Name)
	}

	m := matches[0]
	if m.SHA == "" || m.DownloadURL == "" {
		return RemoteArtifact{}, "", fmt.Errorf("%w: entry %s has no sha or download_url", ErrNoArtifact, m.Name)
	}
	return RemoteArtifact{
		Name:        m.Name,
		ID:          m.SHA,
		DownloadURL: m.DownloadURL,
		Size:        m.Size,
	}, newETag, nil
}

// ReleaseSource reads the latest release through the Releases API.
// The artifact identifier is "asset-<id>".
type ReleaseSource struct {
	Client    *github.Client
	Extension string
}

// Key returns the descriptor URL
func (s *ReleaseSource) Key() string {
	return s.Client.LatestReleaseURL()
}

// Fetch returns the first release asset with the extension
func (s *ReleaseSource) Fetch(ctx context.Context, etag string) (RemoteArtifact, string, error) {
	release, newETag, err := s.Client.LatestRelease(ctx, etag)
	if err != nil {
		return RemoteArtifact{}, "", err
	}

	for _, a := range release.Assets {
		if !hasExtension(a.Name, s.Extension) {
			continue
		}
		if a.BrowserDownloadURL == "" {
			return RemoteArtifact{}, "", fmt.Errorf("%w: asset %s has no download URL", ErrNoArtifact, a.Name)
		}
		return RemoteArtifact{
			Name:        a.Name,
			ID:          fmt.Sprintf("asset-%d", a.ID),
			DownloadURL: a.BrowserDownloadURL,
			Size:        a.Size,
		}, newETag, nil
	}

	return RemoteArtifact{}, "", fmt.Errorf("%w: release %s has no *%s asset", ErrNoArtifact, release.TagName, s.Extension)
}

// hasExtension matches the extension case-insensitively
func hasExtension(name, ext string) bool {
	return ext != "" && strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext))
}

// artifactFileName keeps only the base name of a remote file
func artifactFileName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
