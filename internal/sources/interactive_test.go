// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/mengsi16/PaperCrawler/internal/acquire"
	"github.com/mengsi16/PaperCrawler/internal/httputil"
	"github.com/mengsi16/PaperCrawler/internal/watcher"
	"github.com/mengsi16/PaperCrawler/pkg/types"
)

// fakePage is what the fake browser shows at one URL.
type fakePage struct {
	present map[string]bool
	attrs   map[string]map[string]string
	title   string
	source  string
}

// fakeDriver is a scripted browser. submit decides where a search lands
// given the page and the typed text; redirects apply on navigation.
type fakeDriver struct {
	pages     map[string]fakePage
	redirects map[string]string
	submit    func(loc, typed string) string
	download  func(script string)

	loc       string
	typed     map[string]string
	queries   []string
	clicks    []string
	reloads   int
	scripts   []string
	navigated []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{pages: map[string]fakePage{}, redirects: map[string]string{}, typed: map[string]string{}}
}

func (d *fakeDriver) page() fakePage { return d.pages[d.loc] }

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.navigated = append(d.navigated, url)
	if to, ok := d.redirects[url]; ok {
		url = to
	}
	d.loc = url
	return nil
}

func (d *fakeDriver) Reload(context.Context) error {
	d.reloads++
	return nil
}

func (d *fakeDriver) FirstPresent(_ context.Context, selectors []string, _ time.Duration) (string, bool, error) {
	for _, s := range selectors {
		if d.page().present[s] {
			return s, true, nil
		}
	}
	return "", false, nil
}

func (d *fakeDriver) Attribute(_ context.Context, selector, name string) (string, error) {
	return d.page().attrs[selector][name], nil
}

func (d *fakeDriver) Click(_ context.Context, selector string) error {
	d.clicks = append(d.clicks, selector)
	if strings.Contains(selector, "button") && d.submit != nil {
		d.queries = append(d.queries, d.typed[d.loc])
		d.loc = d.submit(d.loc, d.typed[d.loc])
	}
	return nil
}

func (d *fakeDriver) Clear(_ context.Context, _ string) error {
	d.typed[d.loc] = ""
	return nil
}

func (d *fakeDriver) SendKeys(_ context.Context, _, text string) error {
	d.typed[d.loc] += text
	return nil
}

func (d *fakeDriver) PressEnter(context.Context, string) error {
	d.queries = append(d.queries, d.typed[d.loc])
	if d.submit != nil {
		d.loc = d.submit(d.loc, d.typed[d.loc])
	}
	return nil
}

func (d *fakeDriver) Evaluate(_ context.Context, script string) error {
	d.scripts = append(d.scripts, script)
	if d.download != nil {
		d.download(script)
	}
	return nil
}

func (d *fakeDriver) Location(context.Context) (string, error) { return d.loc, nil }

func (d *fakeDriver) Title(context.Context) (string, error) { return d.page().title, nil }

func (d *fakeDriver) PageSource(context.Context) (string, error) { return d.page().source, nil }

func present(selectors ...string) map[string]bool {
	m := map[string]bool{}
	for _, s := range selectors {
		m[s] = true
	}
	return m
}

// browserDownload simulates the browser writing a download through a
// .crdownload file.
func browserDownload(t *testing.T, dir string) func(string) {
	return func(string) {
		partial := filepath.Join(dir, "download.pdf.crdownload")
		require.NoError(t, os.WriteFile(partial, []byte(testPDF), 0o644))
		require.NoError(t, os.Rename(partial, filepath.Join(dir, "download.pdf")))
	}
}

func testTiming() Timing {
	return Timing{Locate: 50 * time.Millisecond, Probe: 10 * time.Millisecond, Poll: 5 * time.Millisecond}
}

func testWatcher(dir string) *watcher.Watcher {
	return watcher.New(dir, types.WatcherConfig{
		PollInterval: 5 * time.Millisecond,
		Timeout:      time.Second,
		SettleDelay:  time.Millisecond,
	}, arbor.NewLogger())
}

const (
	acmResults   = "https://dl.acm.org/action/doSearch?quoted"
	acmLoose     = "https://dl.acm.org/action/doSearch?loose"
	acmViewer    = "https://dl.acm.org/doi/epdf/10.1145/3485447.3512217"
	acmPDFViewer = "https://dl.acm.org/doi/pdf/10.1145/3485447.3512217"
)

func acmDriver(t *testing.T, dir string) *fakeDriver {
	d := newFakeDriver()
	d.pages[acmHome] = fakePage{present: present(`input[type="checkbox"]`, `input[placeholder="Search"]`)}
	d.pages[acmResults] = fakePage{
		present: present(`.issue-item__title a`, `a[aria-label='PDF']`),
		attrs:   map[string]map[string]string{`a[aria-label='PDF']`: {"href": "/doi/epdf/10.1145/3485447.3512217"}},
	}
	d.pages[acmPDFViewer] = fakePage{}
	d.redirects[acmViewer] = acmPDFViewer
	d.submit = func(_, _ string) string { return acmResults }
	d.download = browserDownload(t, dir)
	return d
}

func TestACMDownload(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "ET-BERT.pdf")
	d := acmDriver(t, dir)

	err := NewACM(d, testWatcher(dir), testTiming(), nil).Download(t.Context(), "ET-BERT", target)

	require.NoError(t, err)
	assert.Equal(t, []string{`"ET-BERT"`}, d.queries)
	assert.Contains(t, d.clicks, `input[type="checkbox"]`)
	assert.Contains(t, d.navigated, acmViewer)
	require.Len(t, d.scripts, 1)
	assert.Contains(t, d.scripts[0], `"`+acmPDFViewer+`"`)
	assert.Contains(t, d.scripts[0], `"ET-BERT.pdf"`)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, testPDF, string(data))
	assert.NoFileExists(t, filepath.Join(dir, "download.pdf"))
}

func TestACMDownloadFallsBackToUnquotedSearch(t *testing.T) {
	dir := t.TempDir()
	d := acmDriver(t, dir)
	d.pages["https://dl.acm.org/action/doSearch?none"] = fakePage{present: present("div.no-results")}
	d.pages[acmLoose] = d.pages[acmResults]
	d.submit = func(_, typed string) string {
		if strings.HasPrefix(typed, `"`) {
			return "https://dl.acm.org/action/doSearch?none"
		}
		return acmLoose
	}

	err := NewACM(d, testWatcher(dir), testTiming(), nil).Download(t.Context(), "ET-BERT", filepath.Join(dir, "ET-BERT.pdf"))

	require.NoError(t, err)
	assert.Equal(t, []string{`"ET-BERT"`, "ET-BERT"}, d.queries)
}

func TestACMDownloadSearchBoxMissing(t *testing.T) {
	dir := t.TempDir()
	d := newFakeDriver()
	d.pages[acmHome] = fakePage{present: present("div.cf-challenge")}

	err := NewACM(d, testWatcher(dir), testTiming(), nil).Download(t.Context(), "Anything", filepath.Join(dir, "a.pdf"))

	assert.ErrorIs(t, err, acquire.ErrAutomation)
	assert.Equal(t, 1, d.reloads)
	assert.Empty(t, d.scripts)
}

func TestACMDownloadNoPDFLink(t *testing.T) {
	dir := t.TempDir()
	d := acmDriver(t, dir)
	d.pages[acmResults] = fakePage{present: present(`.issue-item__title a`)}

	err := NewACM(d, testWatcher(dir), testTiming(), nil).Download(t.Context(), "Paywalled", filepath.Join(dir, "p.pdf"))

	assert.ErrorIs(t, err, acquire.ErrNotFound)
	assert.Empty(t, d.scripts)
}

func TestACMDownloadViewerNeverLoads(t *testing.T) {
	dir := t.TempDir()
	d := acmDriver(t, dir)
	delete(d.redirects, acmViewer)

	err := NewACM(d, testWatcher(dir), testTiming(), nil).Download(t.Context(), "ET-BERT", filepath.Join(dir, "p.pdf"))

	assert.ErrorIs(t, err, acquire.ErrAutomation)
	assert.Empty(t, d.scripts)
}

const (
	ieeeResults = "https://ieeexplore.ieee.org/search/searchresult.jsp"
	ieeeStamp   = "https://ieeexplore.ieee.org/stamp/stamp.jsp?tp=&arnumber=9833581"
	ieeeFrame   = "https://ieeexplore.ieee.org/stampPDF/getPDF.jsp?tp=&arnumber=9833581"
)

func ieeeDriver(t *testing.T, dir string) *fakeDriver {
	d := newFakeDriver()
	d.pages[ieeeHome] = fakePage{present: present(`div.global-search-bar input`, `div.search-icon button`)}
	d.pages[ieeeResults] = fakePage{
		present: present(`a[href*="stamp.jsp"]`),
		attrs:   map[string]map[string]string{`a[href*="stamp.jsp"]`: {"href": "/stamp/stamp.jsp?tp=&arnumber=9833581"}},
	}
	d.pages[ieeeStamp] = fakePage{
		title:   "IEEE Xplore Full-Text PDF:",
		source:  "<html><head><title>IEEE Xplore Full-Text PDF:</title></head><body>",
		present: present(`iframe[src*="stampPDF"]`),
		attrs:   map[string]map[string]string{`iframe[src*="stampPDF"]`: {"src": ieeeFrame}},
	}
	d.submit = func(_, _ string) string { return ieeeResults }
	d.download = browserDownload(t, dir)
	return d
}

func TestIEEEDownload(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "Sok.pdf")
	d := ieeeDriver(t, dir)

	err := NewIEEE(d, testWatcher(dir), testTiming(), nil).Download(t.Context(), "SoK: Paper", target)

	require.NoError(t, err)
	assert.Equal(t, []string{"SoK: Paper"}, d.queries)
	assert.Contains(t, d.clicks, `div.search-icon button`)
	assert.Contains(t, d.navigated, ieeeStamp)
	require.Len(t, d.scripts, 1)
	assert.Contains(t, d.scripts[0], ieeeFrame)
	assert.FileExists(t, target)
}

func TestIEEEDownloadUsesEnterWithoutButton(t *testing.T) {
	dir := t.TempDir()
	d := ieeeDriver(t, dir)
	d.pages[ieeeHome] = fakePage{present: present(`input[type="search"]`)}

	err := NewIEEE(d, testWatcher(dir), testTiming(), nil).Download(t.Context(), "SoK: Paper", filepath.Join(dir, "Sok.pdf"))

	require.NoError(t, err)
	assert.Empty(t, d.clicks)
	assert.Equal(t, []string{"SoK: Paper"}, d.queries)
}

func TestIEEEDownloadAccessWall(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		source string
	}{
		{"login title", "Sign In | IEEE Xplore", "<html>"},
		{"error title", "Error", "<html>"},
		{"subscription page", "IEEE Xplore", "<html><head></head><body>Subscription Required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			d := ieeeDriver(t, dir)
			p := d.pages[ieeeStamp]
			p.title = tt.title
			p.source = tt.source
			d.pages[ieeeStamp] = p

			err := NewIEEE(d, testWatcher(dir), testTiming(), nil).Download(t.Context(), "Walled", filepath.Join(dir, "w.pdf"))

			assert.ErrorIs(t, err, acquire.ErrAutomation)
			assert.Contains(t, err.Error(), "access wall")
			assert.Empty(t, d.scripts)
		})
	}
}

func TestIEEEAccessWallOnlyChecksSourceHead(t *testing.T) {
	dir := t.TempDir()
	d := ieeeDriver(t, dir)
	p := d.pages[ieeeStamp]
	p.source = "<html>" + strings.Repeat(" ", sourceHeadLen) + "sign in for more"
	d.pages[ieeeStamp] = p

	err := NewIEEE(d, testWatcher(dir), testTiming(), nil).Download(t.Context(), "Open", filepath.Join(dir, "o.pdf"))

	assert.NoError(t, err)
}

func TestIEEEDownloadNoResults(t *testing.T) {
	dir := t.TempDir()
	d := ieeeDriver(t, dir)
	d.pages[ieeeResults] = fakePage{}

	err := NewIEEE(d, testWatcher(dir), testTiming(), nil).Download(t.Context(), "Nothing", filepath.Join(dir, "n.pdf"))

	assert.ErrorIs(t, err, acquire.ErrNotFound)
}

func TestIEEEDownloadNeverStarts(t *testing.T) {
	dir := t.TempDir()
	d := ieeeDriver(t, dir)
	d.download = nil
	w := watcher.New(dir, types.WatcherConfig{PollInterval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}, arbor.NewLogger())

	err := NewIEEE(d, w, testTiming(), nil).Download(t.Context(), "SoK: Paper", filepath.Join(dir, "Sok.pdf"))

	require.ErrorIs(t, err, acquire.ErrAutomation)
	assert.Contains(t, err.Error(), "never started")
}

func TestBlobDownloadScriptEscapes(t *testing.T) {
	script := blobDownloadScript(`https://x.org/a?b="c"`, `It's "quoted".pdf`)
	assert.Contains(t, script, `"https://x.org/a?b=\"c\""`)
	assert.Contains(t, script, `"It's \"quoted\".pdf"`)
}

func TestJSString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "paper.pdf", `"paper.pdf"`},
		{"quotes", `say "hi"`, `"say \"hi\""`},
		{"newline", "a\nb", `"a\nb"`},
		{"html left alone", "a&b<c>", `"a&b<c>"`},
		{"empty", "", `""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, jsString(tt.in))
		})
	}
}

type activeFlag bool

func (a activeFlag) Active() bool { return bool(a) }

func TestRegistryStrategies(t *testing.T) {
	tests := []struct {
		name    string
		coreKey string
		active  activeFlag
		want    []acquire.SourceID
	}{
		{
			name: "remote only",
			want: []acquire.SourceID{acquire.SourceAAAI, acquire.SourceNeurIPS, acquire.SourceCVPR, acquire.SourceICCV, acquire.SourceArxiv},
		},
		{
			name:    "with core key",
			coreKey: "k",
			want:    []acquire.SourceID{acquire.SourceAAAI, acquire.SourceNeurIPS, acquire.SourceCVPR, acquire.SourceICCV, acquire.SourceArxiv, acquire.SourceCore},
		},
		{
			name:    "with open session",
			coreKey: "k",
			active:  true,
			want: []acquire.SourceID{
				acquire.SourceAAAI, acquire.SourceNeurIPS, acquire.SourceCVPR, acquire.SourceICCV,
				acquire.SourceArxiv, acquire.SourceCore, acquire.SourceACM, acquire.SourceIEEE,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			r := NewRegistry(httputil.NewClientFrom(nil, ""), tt.coreKey, nil).
				WithInteractive(tt.active, newFakeDriver(), testWatcher(dir), testTiming())

			ds := r.Strategies()

			assert.Equal(t, tt.want, acquire.Plan(ds).Sources())
			for _, d := range ds {
				switch d.Capability {
				case acquire.RemoteFetch:
					assert.NotNil(t, d.Fetcher, "%s", d.Source)
				case acquire.InteractiveSession:
					assert.NotNil(t, d.Session, "%s", d.Source)
				default:
					t.Fatalf("unexpected capability %v", d.Capability)
				}
			}
		})
	}
}

func TestRegistryBuildsFreshDescriptors(t *testing.T) {
	r := NewRegistry(httputil.NewClientFrom(nil, ""), "", nil)
	first := r.Strategies()
	second := r.Strategies()
	assert.NotSame(t, first[0].Fetcher.(*AAAI), second[0].Fetcher.(*AAAI))
	assert.Equal(t, fmt.Sprint(acquire.Plan(first).Sources()), fmt.Sprint(acquire.Plan(second).Sources()))
}
