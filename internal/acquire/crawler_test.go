// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/mengsi16/PaperCrawler/pkg/types"
)

// staticProvider returns the same descriptors for every request.
type staticProvider struct {
	descriptors []Descriptor
	calls       int
}

func (p *staticProvider) Strategies() []Descriptor {
	p.calls++
	return p.descriptors
}

type fakeBrowser struct {
	active  bool
	opens   int
	closes  int
	openErr error
}

func (b *fakeBrowser) Open(context.Context) error {
	if b.openErr != nil {
		return b.openErr
	}
	b.opens++
	b.active = true
	return nil
}

func (b *fakeBrowser) Close() error {
	b.closes++
	b.active = false
	return nil
}

func (b *fakeBrowser) Active() bool { return b.active }

type memoryRecorder struct {
	records []types.AcquisitionRecord
	err     error
}

func (m *memoryRecorder) Record(_ context.Context, rec types.AcquisitionRecord) error {
	m.records = append(m.records, rec)
	return m.err
}

func testCrawler(t *testing.T, p Provider, opts ...Option) *Crawler {
	t.Helper()
	cfg := types.CrawlerConfig{SaveDir: filepath.Join(t.TempDir(), "papers")}
	opts = append(opts, WithLogger(arbor.NewLogger()))
	c, err := NewCrawler(cfg, p, opts...)
	require.NoError(t, err)
	return c
}

func TestNewCrawlerCreatesSaveDir(t *testing.T) {
	c := testCrawler(t, &staticProvider{})
	info, err := os.Stat(c.SaveDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(c.SaveDir()))
}

func TestNewCrawlerFailsWhenSaveDirCannotBeCreated(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := NewCrawler(types.CrawlerConfig{SaveDir: filepath.Join(blocker, "papers")}, &staticProvider{})
	assert.Error(t, err)
}

func TestAcquireIsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{}
	provider := &staticProvider{descriptors: []Descriptor{
		{Source: SourceArxiv, Capability: RemoteFetch, Fetcher: fetcher},
	}}
	c := testCrawler(t, provider)
	req := types.PaperRequest{Title: "ET-BERT: A Contextualized Datagram Representation", Venue: "WWW"}

	first, err := c.Acquire(context.Background(), req)
	require.NoError(t, err)
	second, err := c.Acquire(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, first.Success)
	assert.False(t, first.Skipped)
	assert.True(t, second.Success)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.Path, second.Path)
	assert.Equal(t, 1, fetcher.calls, "second request must not touch any source")
	assert.Equal(t, 1, provider.calls, "second request must not build a plan")
}

func TestAcquireRejectsBlankTitle(t *testing.T) {
	c := testCrawler(t, &staticProvider{})
	_, err := c.Acquire(context.Background(), types.PaperRequest{Title: "   "})
	assert.Error(t, err)
}

func TestAcquireWithNoStrategies(t *testing.T) {
	c := testCrawler(t, &staticProvider{})

	out, err := c.Acquire(context.Background(), types.PaperRequest{Title: "Nowhere To Be Found"})

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Empty(t, out.Failures)
	assert.NoFileExists(t, out.Path)
}

func TestAcquireAllSourcesFail(t *testing.T) {
	provider := &staticProvider{descriptors: []Descriptor{
		{Source: SourceCore, Capability: RemoteFetch, Fetcher: &fakeFetcher{err: ErrNotFound}},
		{Source: SourceArxiv, Capability: RemoteFetch, Fetcher: &fakeFetcher{err: ErrTransport}},
		{Source: SourceIEEE, Capability: InteractiveSession, Session: &fakeSession{err: ErrAutomation}},
	}}
	c := testCrawler(t, provider)

	out, err := c.Acquire(context.Background(), types.PaperRequest{Title: "Hard To Get", Venue: "S&P"})

	require.NoError(t, err)
	assert.False(t, out.Success)
	require.Len(t, out.Failures, 3)
	assert.Equal(t, SourceIEEE, out.Failures[0].Source)
	assert.Equal(t, SourceCore, out.Failures[1].Source)
	assert.Equal(t, SourceArxiv, out.Failures[2].Source)
}

func TestAcquireRecordsOutcomes(t *testing.T) {
	provider := &staticProvider{descriptors: []Descriptor{
		{Source: SourceCore, Capability: RemoteFetch, Fetcher: &fakeFetcher{err: ErrNotFound}},
		{Source: SourceArxiv, Capability: RemoteFetch, Fetcher: &fakeFetcher{}},
	}}
	rec := &memoryRecorder{err: errors.New("disk full")}
	c := testCrawler(t, provider, WithRecorder(rec))
	req := types.PaperRequest{Title: "Recorded Paper", Venue: "ICLR"}

	_, err := c.Acquire(context.Background(), req)
	require.NoError(t, err, "recorder errors must not fail the request")
	_, err = c.Acquire(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, rec.records, 2)
	first := rec.records[0]
	assert.Equal(t, "Recorded Paper", first.Title)
	assert.Equal(t, "ICLR", first.Venue)
	assert.True(t, first.Success)
	assert.Equal(t, "arxiv", first.Source)
	require.Len(t, first.Failures, 1)
	assert.Equal(t, "core", first.Failures[0].Source)
	assert.Equal(t, string(KindNotFound), first.Failures[0].Kind)
	assert.True(t, rec.records[1].Skipped)
}

func TestSessionLifecycle(t *testing.T) {
	browser := &fakeBrowser{}
	c := testCrawler(t, &staticProvider{}, WithSession(browser))

	require.NoError(t, c.OpenSession(context.Background()))
	require.NoError(t, c.OpenSession(context.Background()))
	assert.Equal(t, 1, browser.opens)

	require.NoError(t, c.CloseSession())
	require.NoError(t, c.CloseSession())
	assert.Equal(t, 1, browser.closes)
}

func TestOpenSessionErrors(t *testing.T) {
	c := testCrawler(t, &staticProvider{})
	assert.Error(t, c.OpenSession(context.Background()), "no session configured")

	c = testCrawler(t, &staticProvider{}, WithSession(&fakeBrowser{openErr: errors.New("chrome not found")}))
	err := c.OpenSession(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome not found")
}

func TestAcquireBatch(t *testing.T) {
	provider := &staticProvider{descriptors: []Descriptor{
		{Source: SourceArxiv, Capability: RemoteFetch, Fetcher: fetchFunc(func(_ context.Context, key, target string) error {
			if key == "missing paper" {
				return ErrNotFound
			}
			return os.WriteFile(target, []byte(fakePDFContent), 0o644)
		})},
	}}
	c := testCrawler(t, provider)
	reqs := []types.PaperRequest{
		{Title: "Found Paper"},
		{Title: "Missing Paper"},
		{Title: "Found Paper"},
	}
	var buf bytes.Buffer

	result, err := c.AcquireBatch(context.Background(), reqs, &buf)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Downloaded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 3, result.Total())
	assert.True(t, result.HasFailures())
	assert.Len(t, result.Outcomes, 3)
	assert.Contains(t, buf.String(), "downloaded:")
	assert.Contains(t, buf.String(), "failed:      Missing Paper")
	assert.Contains(t, buf.String(), "Batch summary: 1 downloaded, 1 skipped, 1 failed (total: 3)")
}

func TestAcquireBatchStopsOnFatalError(t *testing.T) {
	c := testCrawler(t, &staticProvider{})
	var buf bytes.Buffer

	_, err := c.AcquireBatch(context.Background(), []types.PaperRequest{{Title: ""}}, &buf)

	assert.Error(t, err)
}

func TestAcquireBatchStopsWhenCancelled(t *testing.T) {
	c := testCrawler(t, &staticProvider{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.AcquireBatch(ctx, []types.PaperRequest{{Title: "Any"}}, &bytes.Buffer{})

	assert.ErrorIs(t, err, context.Canceled)
}
