// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package session owns the Chrome instance that the interactive sources
// drive. The browser saves downloads straight into the crawler's save
// directory so the completion watcher can pick them up.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"

	"github.com/mengsi16/PaperCrawler/internal/acquire"
	"github.com/mengsi16/PaperCrawler/internal/sources"
	"github.com/mengsi16/PaperCrawler/pkg/types"
)

var (
	_ acquire.Session = (*Browser)(nil)
	_ sources.Driver  = (*Browser)(nil)
)

// ErrNotOpen is returned by driver calls made while the browser is closed.
var ErrNotOpen = errors.New("browser session is not open")

// presencePoll is the interval between element presence checks.
const presencePoll = 250 * time.Millisecond

// stealthJS hides the most common automation fingerprints from the sites'
// bot checks. It runs before any page script.
const stealthJS = `
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: true });
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5], configurable: true });
	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'], configurable: true });
	if (!window.chrome) { window.chrome = {}; }
	window.chrome.runtime = {};
`

// Browser is one Chrome instance with a single tab. It implements
// acquire.Session and sources.Driver.
type Browser struct {
	cfg         types.SessionConfig
	downloadDir string
	userAgent   string
	logger      arbor.ILogger

	mu          sync.Mutex
	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

// New returns a closed browser that will download into downloadDir.
func New(cfg types.SessionConfig, downloadDir, userAgent string, logger arbor.ILogger) *Browser {
	def := types.DefaultCrawlerConfig().Session
	if cfg.LocateTimeout <= 0 {
		cfg.LocateTimeout = def.LocateTimeout
	}
	if cfg.PageLoadTimeout <= 0 {
		cfg.PageLoadTimeout = def.PageLoadTimeout
	}
	if userAgent == "" {
		userAgent = types.DefaultUserAgent
	}
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Browser{cfg: cfg, downloadDir: downloadDir, userAgent: userAgent, logger: logger}
}

// allocatorOptions returns the Chrome flags for this session.
func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("start-maximized", true),
		chromedp.UserAgent(b.userAgent),
	)
	if b.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(b.cfg.UserDataDir))
	}
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	return opts
}

// Open starts Chrome, routes downloads into the download directory, and
// installs the stealth script. Calling Open on an open browser is a no-op.
func (b *Browser) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tab != nil && b.tab.Err() == nil {
		return nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	// The first Run binds the browser to its context, so it gets the tab
	// context itself rather than a timeout child. The wait is bounded here.
	abort := func() {
		tabCancel()
		allocCancel()
	}
	if err := awaitStart(ctx, b.cfg.PageLoadTimeout, func() error { return chromedp.Run(tab) }, abort); err != nil {
		abort()
		return fmt.Errorf("starting chrome: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(tab, b.cfg.PageLoadTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(setupCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(b.downloadDir).
			WithEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthJS).Do(ctx)
			return err
		}),
	)
	if err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("configuring chrome: %w", err)
	}

	b.tab, b.tabCancel, b.allocCancel = tab, tabCancel, allocCancel
	b.logger.Info().
		Bool("headless", b.cfg.Headless).
		Str("download_dir", b.downloadDir).
		Msg("Browser session open")
	return nil
}

// awaitStart waits for start to return. When timeout elapses or ctx ends
// first, abort is called and awaitStart waits for start to unwind.
func awaitStart(ctx context.Context, timeout time.Duration, start func() error, abort func()) error {
	done := make(chan error, 1)
	go func() { done <- start() }()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case err := <-done:
		return err
	case <-t.C:
		abort()
		<-done
		return fmt.Errorf("no response after %s", timeout)
	case <-ctx.Done():
		abort()
		<-done
		return ctx.Err()
	}
}

// Close shuts Chrome down.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tab == nil {
		return nil
	}
	b.tabCancel()
	b.allocCancel()
	b.tab, b.tabCancel, b.allocCancel = nil, nil, nil
	b.logger.Info().Msg("Browser session closed")
	return nil
}

// Active reports whether the browser is open and has not crashed.
func (b *Browser) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tab != nil && b.tab.Err() == nil
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (b *Browser) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	b.mu.Lock()
	tab := b.tab
	b.mu.Unlock()
	if tab == nil {
		return ErrNotOpen
	}

	runCtx, cancel := context.WithTimeout(tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// Navigate opens url and waits for the load event.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, b.cfg.PageLoadTimeout, chromedp.Navigate(url))
}

// Reload reloads the current page.
func (b *Browser) Reload(ctx context.Context) error {
	return b.run(ctx, b.cfg.PageLoadTimeout, chromedp.Reload())
}

// FirstPresent polls the page until one of selectors matches or timeout
// passes.
func (b *Browser) FirstPresent(ctx context.Context, selectors []string, timeout time.Duration) (string, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, sel := range selectors {
			var found bool
			if err := b.run(ctx, b.cfg.LocateTimeout, chromedp.Evaluate(presenceScript(sel), &found)); err != nil {
				if errors.Is(err, ErrNotOpen) || ctx.Err() != nil {
					return "", false, err
				}
				// Evaluations fail while a navigation is in flight; keep polling.
				continue
			}
			if found {
				return sel, true, nil
			}
		}
		if !time.Now().Before(deadline) {
			return "", false, nil
		}
		t := time.NewTimer(presencePoll)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", false, ctx.Err()
		case <-t.C:
		}
	}
}

func presenceScript(selector string) string {
	// Marshalling a string never fails.
	q, _ := json.Marshal(selector)
	return fmt.Sprintf("document.querySelector(%s) !== null", q)
}

// Attribute reads one attribute of the first element matching selector.
func (b *Browser) Attribute(ctx context.Context, selector, name string) (string, error) {
	var value string
	var ok bool
	if err := b.run(ctx, b.cfg.LocateTimeout, chromedp.AttributeValue(selector, name, &value, &ok, chromedp.ByQuery)); err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return value, nil
}

// Click clicks the first element matching selector.
func (b *Browser) Click(ctx context.Context, selector string) error {
	return b.run(ctx, b.cfg.LocateTimeout, chromedp.Click(selector, chromedp.ByQuery))
}

// Clear empties an input.
func (b *Browser) Clear(ctx context.Context, selector string) error {
	return b.run(ctx, b.cfg.LocateTimeout, chromedp.Clear(selector, chromedp.ByQuery))
}

// SendKeys types text into the element.
func (b *Browser) SendKeys(ctx context.Context, selector, text string) error {
	return b.run(ctx, b.cfg.LocateTimeout, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

// PressEnter sends the Enter key to the element.
func (b *Browser) PressEnter(ctx context.Context, selector string) error {
	return b.run(ctx, b.cfg.LocateTimeout, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery))
}

// Evaluate runs script in the page and discards its result.
func (b *Browser) Evaluate(ctx context.Context, script string) error {
	return b.run(ctx, b.cfg.LocateTimeout, chromedp.Evaluate(script, nil))
}

// Location returns the current URL.
func (b *Browser) Location(ctx context.Context) (string, error) {
	var loc string
	err := b.run(ctx, b.cfg.LocateTimeout, chromedp.Location(&loc))
	return loc, err
}

// Title returns the document title.
func (b *Browser) Title(ctx context.Context) (string, error) {
	var title string
	err := b.run(ctx, b.cfg.LocateTimeout, chromedp.Title(&title))
	return title, err
}

// PageSource returns the outer HTML of the document.
func (b *Browser) PageSource(ctx context.Context) (string, error) {
	var html string
	err := b.run(ctx, b.cfg.LocateTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}
