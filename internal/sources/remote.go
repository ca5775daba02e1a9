// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed/atom"

	"github.com/mengsi16/PaperCrawler/internal/acquire"
	"github.com/mengsi16/PaperCrawler/internal/httputil"
)

// Base URLs are variables so tests can point them at httptest servers.
var (
	arxivAPIBase  = "https://export.arxiv.org/api/query"
	coreAPIBase   = "https://api.core.ac.uk/v3/search/works"
	aaaiSearchURL = "https://ojs.aaai.org/index.php/AAAI/search/search"
	neuripsBase   = "https://proceedings.neurips.cc"
	cvfBase       = "https://openaccess.thecvf.com"
)

// Arxiv searches the arXiv API by title and downloads the first hit.
type Arxiv struct {
	client *httputil.Client
}

// NewArxiv returns the arXiv strategy.
func NewArxiv(client *httputil.Client) *Arxiv { return &Arxiv{client: client} }

// Fetch implements acquire.Fetcher.
func (a *Arxiv) Fetch(ctx context.Context, key, target string) error {
	q := url.Values{}
	q.Set("search_query", fmt.Sprintf("ti:%q", key))
	q.Set("start", "0")
	q.Set("max_results", "1")
	apiURL := arxivAPIBase + "?" + q.Encode()

	resp, err := a.client.Get(ctx, apiURL)
	if err != nil {
		return fmt.Errorf("%w: arXiv API request: %v", acquire.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: arXiv API returned HTTP %d", acquire.ErrTransport, resp.StatusCode)
	}

	feed, err := (&atom.Parser{}).Parse(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: parsing arXiv feed: %v", acquire.ErrTransport, err)
	}
	if len(feed.Entries) == 0 {
		return fmt.Errorf("%w: no arXiv entry for %q", acquire.ErrNotFound, key)
	}

	for _, link := range feed.Entries[0].Links {
		if link.Title == "pdf" && link.Href != "" {
			return downloadPDF(ctx, a.client, link.Href, target)
		}
	}
	return fmt.Errorf("%w: arXiv entry has no pdf link", acquire.ErrNotFound)
}

// Core queries the CORE aggregator. It needs an API key.
type Core struct {
	client *httputil.Client
	apiKey string
}

// NewCore returns the CORE strategy.
func NewCore(client *httputil.Client, apiKey string) *Core {
	return &Core{client: client, apiKey: apiKey}
}

type coreSearchResponse struct {
	Results []struct {
		Title       string `json:"title"`
		DownloadURL string `json:"downloadUrl"`
	} `json:"results"`
}

// Fetch implements acquire.Fetcher.
func (c *Core) Fetch(ctx context.Context, key, target string) error {
	body, err := json.Marshal(map[string]string{"q": fmt.Sprintf("title:(%q)", key)})
	if err != nil {
		return fmt.Errorf("%w: encoding CORE query: %v", acquire.ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, coreAPIBase, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: creating CORE request: %v", acquire.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: CORE API request: %v", acquire.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: CORE API returned HTTP %d", acquire.ErrTransport, resp.StatusCode)
	}

	var result coreSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("%w: parsing CORE response: %v", acquire.ErrTransport, err)
	}
	if len(result.Results) == 0 || result.Results[0].DownloadURL == "" {
		return fmt.Errorf("%w: CORE has no download link for %q", acquire.ErrNotFound, key)
	}
	return downloadPDF(ctx, c.client, result.Results[0].DownloadURL, target)
}

// AAAI scrapes the AAAI OJS search and article pages.
type AAAI struct {
	client *httputil.Client
}

// NewAAAI returns the AAAI strategy.
func NewAAAI(client *httputil.Client) *AAAI { return &AAAI{client: client} }

// Fetch implements acquire.Fetcher.
func (a *AAAI) Fetch(ctx context.Context, key, target string) error {
	searchURL := aaaiSearchURL + "?" + url.Values{"query": {key}}.Encode()
	doc, err := getDocument(ctx, a.client, searchURL)
	if err != nil {
		return err
	}
	articleURL, err := firstHref(doc, "h3.title a, h4.title a", searchURL, "AAAI search result")
	if err != nil {
		return err
	}

	article, err := getDocument(ctx, a.client, articleURL)
	if err != nil {
		return err
	}
	galleyURL, err := firstHref(article, "a.obj_galley_link.pdf", articleURL, "PDF galley on "+articleURL)
	if err != nil {
		return err
	}
	return downloadPDF(ctx, a.client, strings.Replace(galleyURL, "/view/", "/download/", 1), target)
}

// NeurIPS scrapes the NeurIPS proceedings search.
type NeurIPS struct {
	client *httputil.Client
}

// NewNeurIPS returns the NeurIPS strategy.
func NewNeurIPS(client *httputil.Client) *NeurIPS { return &NeurIPS{client: client} }

// Fetch implements acquire.Fetcher. The search returns loosely related
// papers, so the first link whose text contains the key is taken rather
// than the first link.
func (n *NeurIPS) Fetch(ctx context.Context, key, target string) error {
	searchURL := neuripsBase + "/papers/search?" + url.Values{"q": {key}}.Encode()
	doc, err := getDocument(ctx, n.client, searchURL)
	if err != nil {
		return err
	}

	want := squash(key)
	var href string
	doc.Find("div.container-fluid ul li a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(squash(s.Text()), want) {
			return true
		}
		href, _ = s.Attr("href")
		return href == ""
	})
	if href == "" {
		return fmt.Errorf("%w: no NeurIPS search result matches %q", acquire.ErrNotFound, key)
	}

	abstractURL, err := resolveURL(neuripsBase+"/", href)
	if err != nil {
		return fmt.Errorf("%w: bad NeurIPS link %q: %v", acquire.ErrNotFound, href, err)
	}
	pdfURL := strings.Replace(abstractURL, "Abstract.html", "Paper.pdf", 1)
	pdfURL = strings.Replace(pdfURL, "/hash/", "/file/", 1)
	return downloadPDF(ctx, n.client, pdfURL, target)
}

// squash lower-cases s and drops all spaces.
func squash(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "")
}

// CVF scrapes CVF Open Access, which hosts both CVPR and ICCV.
type CVF struct {
	client *httputil.Client
}

// NewCVF returns the CVF strategy.
func NewCVF(client *httputil.Client) *CVF { return &CVF{client: client} }

// Fetch implements acquire.Fetcher.
func (c *CVF) Fetch(ctx context.Context, key, target string) error {
	searchURL := cvfBase + "/search_result?" + url.Values{"q": {key}}.Encode()
	doc, err := getDocument(ctx, c.client, searchURL)
	if err != nil {
		return err
	}
	abstractURL, err := firstHref(doc, "div.content div dl dt a", searchURL, "CVF search result")
	if err != nil {
		return err
	}

	abstract, err := getDocument(ctx, c.client, abstractURL)
	if err != nil {
		return err
	}
	pdfURL, err := firstHref(abstract, `a[href$=".pdf"]`, abstractURL, "PDF link on "+abstractURL)
	if err != nil {
		return err
	}
	return downloadPDF(ctx, c.client, pdfURL, target)
}
