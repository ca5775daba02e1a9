// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/mengsi16/PaperCrawler/internal/acquire"
	"github.com/mengsi16/PaperCrawler/internal/watcher"
)

var (
	acmHome  = "https://dl.acm.org/"
	ieeeHome = "https://ieeexplore.ieee.org/"
)

// Driver is the subset of browser automation the interactive strategies
// need. Selectors are CSS selectors.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	// FirstPresent waits up to timeout for any of selectors to match and
	// returns the first one that does. ok is false when none appeared.
	FirstPresent(ctx context.Context, selectors []string, timeout time.Duration) (selector string, ok bool, err error)
	Attribute(ctx context.Context, selector, name string) (string, error)
	Click(ctx context.Context, selector string) error
	Clear(ctx context.Context, selector string) error
	SendKeys(ctx context.Context, selector, text string) error
	PressEnter(ctx context.Context, selector string) error
	Evaluate(ctx context.Context, script string) error
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// PageSource returns the serialized document.
	PageSource(ctx context.Context) (string, error)
}

// Timing bounds the element waits of the interactive strategies.
type Timing struct {
	// Locate bounds the wait for elements that must be there.
	Locate time.Duration
	// Probe bounds the wait for elements that may legitimately be absent.
	Probe time.Duration
	// Poll is the interval for location checks.
	Poll time.Duration
}

// DefaultTiming matches the default session settings.
func DefaultTiming() Timing {
	return Timing{Locate: 25 * time.Second, Probe: 3 * time.Second, Poll: 500 * time.Millisecond}
}

// interactive holds what ACM and IEEE share: the driver, the watcher on
// the download directory, and the blob download trigger.
type interactive struct {
	name    string
	driver  Driver
	watcher *watcher.Watcher
	timing  Timing
	logger  arbor.ILogger
}

// locate finds the first present selector or fails with ErrAutomation.
func (s *interactive) locate(ctx context.Context, selectors []string, what string) (string, error) {
	sel, ok, err := s.driver.FirstPresent(ctx, selectors, s.timing.Locate)
	if err != nil {
		return "", fmt.Errorf("%w: %s: locating %s: %v", acquire.ErrAutomation, s.name, what, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s: %s not found", acquire.ErrAutomation, s.name, what)
	}
	return sel, nil
}

// probe reports whether any selector appears within the short probe window.
func (s *interactive) probe(ctx context.Context, selectors ...string) (string, bool) {
	sel, ok, err := s.driver.FirstPresent(ctx, selectors, s.timing.Probe)
	if err != nil {
		return "", false
	}
	return sel, ok
}

// locateWithReload looks for selectors, reloading the page once when they
// are missing. Verification interstitials often clear on a reload.
func (s *interactive) locateWithReload(ctx context.Context, selectors []string, what string) (string, error) {
	if sel, ok, err := s.driver.FirstPresent(ctx, selectors, s.timing.Locate); err == nil && ok {
		return sel, nil
	}
	s.logger.Warn().Str("source", s.name).Str("element", what).Msg("Element missing, reloading once (verification page?)")
	if err := s.driver.Reload(ctx); err != nil {
		return "", fmt.Errorf("%w: %s: reloading: %v", acquire.ErrAutomation, s.name, err)
	}
	return s.locate(ctx, selectors, what)
}

// search types query into the box and submits it with Enter.
func (s *interactive) search(ctx context.Context, box, query string) error {
	if err := s.driver.Clear(ctx, box); err != nil {
		return fmt.Errorf("%w: %s: clearing search box: %v", acquire.ErrAutomation, s.name, err)
	}
	if err := s.driver.SendKeys(ctx, box, query); err != nil {
		return fmt.Errorf("%w: %s: typing query: %v", acquire.ErrAutomation, s.name, err)
	}
	if err := s.driver.PressEnter(ctx, box); err != nil {
		return fmt.Errorf("%w: %s: submitting search: %v", acquire.ErrAutomation, s.name, err)
	}
	return nil
}

// href reads and resolves the href of selector against the current page.
func (s *interactive) href(ctx context.Context, selector, attr string) (string, error) {
	ref, err := s.driver.Attribute(ctx, selector, attr)
	if err != nil {
		return "", fmt.Errorf("%w: %s: reading %s of %s: %v", acquire.ErrAutomation, s.name, attr, selector, err)
	}
	if strings.TrimSpace(ref) == "" {
		return "", fmt.Errorf("%w: %s: %s has no %s", acquire.ErrNotFound, s.name, selector, attr)
	}
	loc, err := s.driver.Location(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %s: reading location: %v", acquire.ErrAutomation, s.name, err)
	}
	resolved, err := resolveURL(loc, ref)
	if err != nil {
		return "", fmt.Errorf("%w: %s: bad link %q: %v", acquire.ErrAutomation, s.name, ref, err)
	}
	return resolved, nil
}

// waitLocation polls the page location until it contains substr.
func (s *interactive) waitLocation(ctx context.Context, substr string) (string, error) {
	deadline := time.Now().Add(s.timing.Locate)
	for {
		loc, err := s.driver.Location(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: %s: reading location: %v", acquire.ErrAutomation, s.name, err)
		}
		if strings.Contains(loc, substr) {
			return loc, nil
		}
		if !time.Now().Before(deadline) {
			return "", fmt.Errorf("%w: %s: location %s never reached %s", acquire.ErrAutomation, s.name, loc, substr)
		}
		t := time.NewTimer(s.timing.Poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", fmt.Errorf("%w: %s: %v", acquire.ErrAutomation, s.name, ctx.Err())
		case <-t.C:
		}
	}
}

// downloadViaBlob fetches pdfURL inside the page, where the session's
// cookies apply, and saves it through a synthetic anchor click. The
// watcher then moves the finished file to target.
func (s *interactive) downloadViaBlob(ctx context.Context, pdfURL, target string) error {
	before, err := s.watcher.Snapshot()
	if err != nil {
		return err
	}
	if err := s.driver.Evaluate(ctx, blobDownloadScript(pdfURL, filepath.Base(target))); err != nil {
		return fmt.Errorf("%w: %s: triggering download: %v", acquire.ErrAutomation, s.name, err)
	}
	s.logger.Debug().Str("source", s.name).Str("url", pdfURL).Msg("Download triggered, waiting for file")
	return s.watcher.Wait(ctx, before, target)
}

func blobDownloadScript(pdfURL, name string) string {
	return fmt.Sprintf(`(() => {
  const url = %s, name = %s;
  fetch(url, {credentials: 'include'})
    .then(r => { if (!r.ok) throw new Error('HTTP ' + r.status); return r.blob(); })
    .then(b => {
      const href = URL.createObjectURL(b);
      const a = document.createElement('a');
      a.href = href;
      a.download = name;
      a.style.display = 'none';
      document.body.appendChild(a);
      a.click();
      setTimeout(() => { URL.revokeObjectURL(href); a.remove(); }, 5000);
    })
    .catch(e => console.error('blob download failed', e));
})()`, jsString(pdfURL), jsString(name))
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a string into a bytes.Buffer never fails.
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// ACM drives the ACM Digital Library.
type ACM struct {
	interactive
}

var (
	acmCookieSelectors = []string{`input[type="checkbox"]`}
	acmSearchSelectors = []string{`input[placeholder="Search"]`, `input[type="search"]`, `input[name="AllField"]`}
	acmResultSelectors = []string{`.issue-item__title a`, `.issue-item a`}
	acmPDFSelectors    = []string{`a[aria-label='PDF']`, `a[aria-label='View PDF']`, `a.btn.red[href*='pdf']`}
)

// NewACM returns the ACM strategy.
func NewACM(d Driver, w *watcher.Watcher, timing Timing, logger arbor.ILogger) *ACM {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &ACM{interactive{name: "acm", driver: d, watcher: w, timing: timing, logger: logger}}
}

// Download implements acquire.SessionDownloader.
func (a *ACM) Download(ctx context.Context, title, target string) error {
	if err := a.driver.Navigate(ctx, acmHome); err != nil {
		return fmt.Errorf("%w: acm: opening home page: %v", acquire.ErrTransport, err)
	}
	if sel, ok := a.probe(ctx, acmCookieSelectors...); ok {
		if err := a.driver.Click(ctx, sel); err != nil {
			a.logger.Debug().Err(err).Msg("Could not accept ACM cookie banner")
		}
	}

	box, err := a.locateWithReload(ctx, acmSearchSelectors, "search box")
	if err != nil {
		return err
	}
	if err := a.search(ctx, box, fmt.Sprintf("%q", title)); err != nil {
		return err
	}

	if _, noResults := a.probe(ctx, "div.no-results"); noResults {
		a.logger.Info().Str("title", title).Msg("No exact ACM match, retrying without quotes")
		if err := a.driver.Navigate(ctx, acmHome); err != nil {
			return fmt.Errorf("%w: acm: reopening home page: %v", acquire.ErrTransport, err)
		}
		box, err := a.locate(ctx, acmSearchSelectors, "search box")
		if err != nil {
			return err
		}
		if err := a.search(ctx, box, title); err != nil {
			return err
		}
	}

	if _, ok, err := a.driver.FirstPresent(ctx, acmResultSelectors, a.timing.Locate); err != nil || !ok {
		return fmt.Errorf("%w: acm: no search results for %q", acquire.ErrNotFound, title)
	}
	pdfSel, ok, err := a.driver.FirstPresent(ctx, acmPDFSelectors, a.timing.Locate)
	if err != nil || !ok {
		return fmt.Errorf("%w: acm: first result has no PDF link (access wall?)", acquire.ErrNotFound)
	}
	viewerURL, err := a.href(ctx, pdfSel, "href")
	if err != nil {
		return err
	}

	if err := a.driver.Navigate(ctx, viewerURL); err != nil {
		return fmt.Errorf("%w: acm: opening PDF viewer: %v", acquire.ErrTransport, err)
	}
	pdfURL, err := a.waitLocation(ctx, "/doi/pdf/")
	if err != nil {
		return err
	}
	return a.downloadViaBlob(ctx, pdfURL, target)
}

// IEEE drives IEEE Xplore.
type IEEE struct {
	interactive
}

var (
	ieeeSearchSelectors = []string{`div.global-search-bar input`, `input[type="search"]`, `xpl-typeahead-migr input`}
	ieeeButtonSelectors = []string{`div.search-icon button`, `button[type="submit"]`}
	ieeeStampSelectors  = []string{`xpl-results-item a[href*="stamp.jsp"]`, `a[href*="stamp.jsp"]`, `.pdf-btn-container a`}
	ieeeFrameSelectors  = []string{`iframe[src*=".pdf"]`, `iframe[src*="stampPDF"]`, `embed[src]`, `iframe[src]`}

	// Access walls are detected from the page title and the start of the
	// page source.
	ieeeTitleWalls  = []string{"login", "sign in", "access denied", "error"}
	ieeeSourceWalls = []string{"login", "sign in", "access denied", "subscription required"}
)

// sourceHeadLen is how much of the page source is checked for access walls.
const sourceHeadLen = 500

// NewIEEE returns the IEEE strategy.
func NewIEEE(d Driver, w *watcher.Watcher, timing Timing, logger arbor.ILogger) *IEEE {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &IEEE{interactive{name: "ieee", driver: d, watcher: w, timing: timing, logger: logger}}
}

// Download implements acquire.SessionDownloader.
func (s *IEEE) Download(ctx context.Context, title, target string) error {
	if err := s.driver.Navigate(ctx, ieeeHome); err != nil {
		return fmt.Errorf("%w: ieee: opening home page: %v", acquire.ErrTransport, err)
	}

	box, err := s.locateWithReload(ctx, ieeeSearchSelectors, "search box")
	if err != nil {
		return err
	}
	if err := s.driver.Clear(ctx, box); err != nil {
		return fmt.Errorf("%w: ieee: clearing search box: %v", acquire.ErrAutomation, err)
	}
	if err := s.driver.SendKeys(ctx, box, title); err != nil {
		return fmt.Errorf("%w: ieee: typing query: %v", acquire.ErrAutomation, err)
	}
	submitted := false
	if btn, ok := s.probe(ctx, ieeeButtonSelectors...); ok {
		submitted = s.driver.Click(ctx, btn) == nil
	}
	if !submitted {
		if err := s.driver.PressEnter(ctx, box); err != nil {
			return fmt.Errorf("%w: ieee: submitting search: %v", acquire.ErrAutomation, err)
		}
	}

	stampSel, ok, err := s.driver.FirstPresent(ctx, ieeeStampSelectors, s.timing.Locate)
	if err != nil || !ok {
		return fmt.Errorf("%w: ieee: no PDF link in search results for %q", acquire.ErrNotFound, title)
	}
	stampURL, err := s.href(ctx, stampSel, "href")
	if err != nil {
		return err
	}
	if err := s.driver.Navigate(ctx, stampURL); err != nil {
		return fmt.Errorf("%w: ieee: opening PDF page: %v", acquire.ErrTransport, err)
	}

	if err := s.checkAccessWall(ctx); err != nil {
		return err
	}

	frameSel, err := s.locate(ctx, ieeeFrameSelectors, "embedded PDF frame")
	if err != nil {
		return err
	}
	pdfURL, err := s.href(ctx, frameSel, "src")
	if err != nil {
		return err
	}
	return s.downloadViaBlob(ctx, pdfURL, target)
}

func (s *IEEE) checkAccessWall(ctx context.Context) error {
	title, err := s.driver.Title(ctx)
	if err != nil {
		return fmt.Errorf("%w: ieee: reading title: %v", acquire.ErrAutomation, err)
	}
	if kw, hit := containsAny(strings.ToLower(title), ieeeTitleWalls); hit {
		return fmt.Errorf("%w: ieee: access wall (title mentions %q)", acquire.ErrAutomation, kw)
	}

	src, err := s.driver.PageSource(ctx)
	if err != nil {
		return fmt.Errorf("%w: ieee: reading page source: %v", acquire.ErrAutomation, err)
	}
	if len(src) > sourceHeadLen {
		src = src[:sourceHeadLen]
	}
	if kw, hit := containsAny(strings.ToLower(src), ieeeSourceWalls); hit {
		return fmt.Errorf("%w: ieee: access wall (page mentions %q)", acquire.ErrAutomation, kw)
	}
	return nil
}

func containsAny(s string, words []string) (string, bool) {
	for _, w := range words {
		if strings.Contains(s, w) {
			return w, true
		}
	}
	return "", false
}
