package update

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"

	"github.com/emotionice/treexlauncher/internal/common/github"
	"github.com/emotionice/treexlauncher/internal/common/httpclient"
)

var (
	// ErrInvalidXPath is returned when the XPath expression does not compile
	ErrInvalidXPath = errors.New("invalid XPath expression")
	// ErrPageFetch is returned when the download page cannot be read
	ErrPageFetch = errors.New("download page unavailable")
)

// DefaultLinkSelector matches every link on a page
const DefaultLinkSelector = "a[href]"

// maxPageSize bounds how much of a download page is read
const maxPageSize = 4 << 20

// PageSource scrapes an HTML download page for the artifact link. Links
// are selected with a CSS selector (goquery) or, when XPath is set, an
// XPath expression (htmlquery). The artifact identifier is the resolved
// link URL, so pages must publish versioned file names.
type PageSource struct {
	HTTP      *httpclient.Client
	URL       string
	Selector  string
	XPath     string
	Extension string
}

// Key returns the page URL
func (s *PageSource) Key() string {
	return "page:" + s.URL
}

// Fetch downloads the page and returns the first link with the extension
func (s *PageSource) Fetch(ctx context.Context, etag string) (RemoteArtifact, string, error) {
	headers := map[string]string{"Accept": "text/html"}
	if etag != "" {
		headers["If-None-Match"] = etag
	}
	resp, err := s.HTTP.Get(ctx, s.URL, headers)
	if err != nil {
		return RemoteArtifact{}, "", fmt.Errorf("%w: %v", ErrPageFetch, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		return RemoteArtifact{}, "", github.ErrNotModified
	default:
		return RemoteArtifact{}, "", fmt.Errorf("%w: status %d from %s", ErrPageFetch, resp.StatusCode, s.URL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return RemoteArtifact{}, "", fmt.Errorf("%w: %v", ErrPageFetch, err)
	}

	links, err := s.links(body)
	if err != nil {
		return RemoteArtifact{}, "", err
	}

	base, err := url.Parse(s.URL)
	if err != nil {
		return RemoteArtifact{}, "", fmt.Errorf("%w: %v", ErrPageFetch, err)
	}
	for _, href := range links {
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		name := path.Base(abs.Path)
		if !hasExtension(name, s.Extension) {
			continue
		}
		return RemoteArtifact{
			Name:        name,
			ID:          abs.String(),
			DownloadURL: abs.String(),
		}, resp.Header.Get("ETag"), nil
	}

	return RemoteArtifact{}, "", fmt.Errorf("%w: no *%s link on %s", ErrNoArtifact, s.Extension, s.URL)
}

// links returns the href of every selected element in document order
func (s *PageSource) links(content []byte) ([]string, error) {
	if s.XPath != "" {
		return linksWithXPath(content, s.XPath)
	}
	selector := s.Selector
	if selector == "" {
		selector = DefaultLinkSelector
	}
	return linksWithCSS(content, selector)
}

func linksWithCSS(content []byte, selector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var links []string
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			links = append(links, href)
		}
	})
	return links, nil
}

func linksWithXPath(content []byte, expr string) ([]string, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	nodes, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidXPath, err)
	}

	links := make([]string, 0, len(nodes))
	for _, n := range nodes {
		// an XPath may select the href attribute itself or its element
		if href := htmlquery.SelectAttr(n, "href"); href != "" {
			links = append(links, href)
			continue
		}
		if text := strings.TrimSpace(htmlquery.InnerText(n)); text != "" {
			links = append(links, text)
		}
	}
	return links, nil
}
