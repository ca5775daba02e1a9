// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"github.com/ternarybob/arbor"

	"github.com/mengsi16/PaperCrawler/internal/acquire"
	"github.com/mengsi16/PaperCrawler/internal/httputil"
	"github.com/mengsi16/PaperCrawler/internal/watcher"
)

// ActiveChecker reports whether the browser session is open.
type ActiveChecker interface {
	Active() bool
}

// Registry builds the strategies available for each request. It
// implements acquire.Provider.
type Registry struct {
	client  *httputil.Client
	coreKey string
	logger  arbor.ILogger

	session ActiveChecker
	driver  Driver
	watcher *watcher.Watcher
	timing  Timing
}

// NewRegistry returns a registry of the remote sources. CORE is included
// only when coreKey is set.
func NewRegistry(client *httputil.Client, coreKey string, logger arbor.ILogger) *Registry {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Registry{client: client, coreKey: coreKey, logger: logger}
}

// WithInteractive adds ACM and IEEE, offered while session is active.
func (r *Registry) WithInteractive(session ActiveChecker, d Driver, w *watcher.Watcher, timing Timing) *Registry {
	r.session = session
	r.driver = d
	r.watcher = w
	r.timing = timing
	return r
}

// Strategies implements acquire.Provider. Descriptors are built fresh on
// every call.
func (r *Registry) Strategies() []acquire.Descriptor {
	cvf := NewCVF(r.client)
	ds := []acquire.Descriptor{
		{Source: acquire.SourceAAAI, Capability: acquire.RemoteFetch, Fetcher: NewAAAI(r.client)},
		{Source: acquire.SourceNeurIPS, Capability: acquire.RemoteFetch, Fetcher: NewNeurIPS(r.client)},
		{Source: acquire.SourceCVPR, Capability: acquire.RemoteFetch, Fetcher: cvf},
		{Source: acquire.SourceICCV, Capability: acquire.RemoteFetch, Fetcher: cvf},
		{Source: acquire.SourceArxiv, Capability: acquire.RemoteFetch, Fetcher: NewArxiv(r.client)},
	}
	if r.coreKey != "" {
		ds = append(ds, acquire.Descriptor{Source: acquire.SourceCore, Capability: acquire.RemoteFetch, Fetcher: NewCore(r.client, r.coreKey)})
	}
	if r.session != nil && r.session.Active() && r.driver != nil && r.watcher != nil {
		ds = append(ds,
			acquire.Descriptor{Source: acquire.SourceACM, Capability: acquire.InteractiveSession, Session: NewACM(r.driver, r.watcher, r.timing, r.logger)},
			acquire.Descriptor{Source: acquire.SourceIEEE, Capability: acquire.InteractiveSession, Session: NewIEEE(r.driver, r.watcher, r.timing, r.logger)},
		)
	}
	return ds
}
