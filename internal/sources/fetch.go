// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sources implements the per-site strategies that look a paper up
// by title and deliver its PDF. Remote strategies talk HTTP; interactive
// strategies drive the shared browser session and hand the download off to
// the completion watcher.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mengsi16/PaperCrawler/internal/acquire"
	"github.com/mengsi16/PaperCrawler/internal/httputil"
)

const pdfContentType = "application/pdf"

// downloadPDF streams url to target through a temporary file in the same
// directory. target exists afterwards only if the whole body arrived and
// the server declared it a PDF.
func downloadPDF(ctx context.Context, client *httputil.Client, rawURL, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: creating request for %s: %v", acquire.ErrTransport, rawURL, err)
	}
	req.Header.Set("Accept", pdfContentType)

	resp, err := client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", acquire.ErrTransport, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: HTTP %d from %s", acquire.ErrTransport, resp.StatusCode, rawURL)
	}
	if ct := resp.Header.Get("Content-Type"); !isPDF(ct) {
		return fmt.Errorf("%w: %s served %q", acquire.ErrFormatMismatch, rawURL, ct)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(target), ".fetch-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", acquire.ErrFilesystem, err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: reading body from %s: %v", acquire.ErrTransport, rawURL, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: closing temp file: %v", acquire.ErrFilesystem, closeErr)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: renaming temp file: %v", acquire.ErrFilesystem, err)
	}
	return nil
}

func isPDF(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), pdfContentType)
}

// getDocument fetches an HTML page and parses it.
func getDocument(ctx context.Context, client *httputil.Client, pageURL string) (*goquery.Document, error) {
	resp, err := client.Get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", acquire.ErrTransport, pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d from %s", acquire.ErrTransport, resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", acquire.ErrTransport, pageURL, err)
	}
	return doc, nil
}

// resolveURL resolves ref against base. Absolute refs are returned as is.
func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

// firstHref returns the resolved href of the first element matching
// selector, or ErrNotFound.
func firstHref(doc *goquery.Document, selector, base, what string) (string, error) {
	href, ok := doc.Find(selector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", fmt.Errorf("%w: no %s", acquire.ErrNotFound, what)
	}
	resolved, err := resolveURL(base, href)
	if err != nil {
		return "", fmt.Errorf("%w: bad %s link %q: %v", acquire.ErrNotFound, what, href, err)
	}
	return resolved, nil
}
