package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emotionice/treexlauncher/internal/common/httpclient"
	"github.com/emotionice/treexlauncher/internal/common/version"
)

var (
	// ErrRateLimit indicates GitHub API rate limit exceeded
	ErrRateLimit = errors.New("GitHub API rate limit exceeded")
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found in repository")
	// ErrAPIError indicates a general GitHub API error
	ErrAPIError = errors.New("GitHub API error")
	// ErrNotModified is returned when the server answered 304 to an If-None-Match request
	ErrNotModified = errors.New("not modified")
)

// DefaultBaseURL is the public GitHub REST endpoint
const DefaultBaseURL = "https://api.github.com"

// Client handles communication with the GitHub API
type Client struct {
	BaseURL    string
	Repository string
	UserAgent  string
	HTTP       *httpclient.Client
}

// ContentEntry represents a file/directory entry from GitHub Contents API
type ContentEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Type        string `json:"type"` // "file" or "dir"
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url,omitempty"`
}

// ReleaseAsset represents a downloadable file attached to a release.
type ReleaseAsset struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	BrowserDownloadURL string    `json:"browser_download_url"`
	ContentType        string    `json:"content_type"`
	Size               int64     `json:"size"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ReleaseInfo contains information about a GitHub release.
type ReleaseInfo struct {
	TagName     string         `json:"tag_name"`
	Name        string         `json:"name"`
	HTMLURL     string         `json:"html_url"`
	PublishedAt time.Time      `json:"published_at"`
	Assets      []ReleaseAsset `json:"assets"`
}

// NewClient creates a new GitHub API client for repository (owner/name).
// A nil transport gets the default retrying client.
func NewClient(repository string, transport *httpclient.Client) *Client {
	if transport == nil {
		transport = httpclient.NewDefault()
	}
	return &Client{
		BaseURL:    DefaultBaseURL,
		Repository: repository,
		UserAgent:  version.UserAgent(),
		HTTP:       transport,
	}
}

// ContentsURL returns the Contents API URL for a directory at ref
func (c *Client) ContentsURL(path, ref string) string {
	u := fmt.Sprintf("%s/repos/%s/contents", strings.TrimRight(c.BaseURL, "/"), c.Repository)
	if p := strings.Trim(path, "/"); p != "" {
		u += "/" + p
	}
	if ref != "" {
		u += "?ref=" + url.QueryEscape(ref)
	}
	return u
}

// LatestReleaseURL returns the releases/latest API URL
func (c *Client) LatestReleaseURL() string {
	return fmt.Sprintf("%s/repos/%s/releases/latest", strings.TrimRight(c.BaseURL, "/"), c.Repository)
}

// ListContents lists the entries of a repository directory.
// When etag is non-empty it is sent as If-None-Match; a 304 answer yields
// ErrNotModified. The returned string is the response ETag.
func (c *Client) ListContents(ctx context.Context, path, ref, etag string) ([]ContentEntry, string, error) {
	var entries []ContentEntry
	newETag, err := c.getJSON(ctx, c.ContentsURL(path, ref), etag, &entries)
	if err != nil {
		return nil, "", err
	}
	return entries, newETag, nil
}

// LatestRelease fetches the latest published release.
// ETag handling is the same as ListContents.
func (c *Client) LatestRelease(ctx context.Context, etag string) (*ReleaseInfo, string, error) {
	var release ReleaseInfo
	newETag, err := c.getJSON(ctx, c.LatestReleaseURL(), etag, &release)
	if err != nil {
		return nil, "", err
	}
	return &release, newETag, nil
}

// getJSON performs a GET and decodes a 200 response into out
func (c *Client) getJSON(ctx context.Context, url, etag string, out interface{}) (string, error) {
	headers := map[string]string{
		"Accept":     "application/vnd.github+json",
		"User-Agent": c.UserAgent,
	}
	if etag != "" {
		headers["If-None-Match"] = etag
	}

	resp, err := c.HTTP.Get(ctx, url, headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return "", fmt.Errorf("failed to parse GitHub response: %w", err)
	}

	return resp.Header.Get("ETag"), nil
}

// checkStatus maps a GitHub response status to the package errors
func checkStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotModified:
		return ErrNotModified
	case http.StatusForbidden:
		return fmt.Errorf("%w: rate limit resets at %s", ErrRateLimit, resetTime(resp.Header))
	case http.StatusNotFound:
		return ErrNotFound
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%w: status %d: %s", ErrAPIError, resp.StatusCode, strings.TrimSpace(string(body)))
}

// resetTime formats X-RateLimit-Reset (unix seconds) for messages
func resetTime(h http.Header) string {
	raw := h.Get("X-RateLimit-Reset")
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if raw == "" {
			return "unknown"
		}
		return raw
	}
	return time.Unix(secs, 0).Local().Format(time.Kitchen)
}

// GetRateLimitInfo returns current rate limit status
func (c *Client) GetRateLimitInfo(ctx context.Context) (remaining int, reset time.Time, err error) {
	u := fmt.Sprintf("%s/rate_limit", strings.TrimRight(c.BaseURL, "/"))

	resp, err := c.HTTP.Get(ctx, u, map[string]string{"User-Agent": c.UserAgent})
	if err != nil {
		return 0, time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, time.Time{}, fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
	}

	var result struct {
		Resources struct {
			Core struct {
				Remaining int   `json:"remaining"`
				Reset     int64 `json:"reset"`
			} `json:"core"`
		} `json:"resources"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, time.Time{}, err
	}

	return result.Resources.Core.Remaining, time.Unix(result.Resources.Core.Reset, 0), nil
}
