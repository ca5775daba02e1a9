// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/mengsi16/PaperCrawler/pkg/types"
)

// Client is a rate-limited HTTP client that retries on HTTP 429 and stamps
// every request with the configured User-Agent.
type Client struct {
	http       *http.Client
	limiter    *rate.Limiter
	userAgent  string
	maxRetries int
	logger     arbor.ILogger
}

// NewClient builds a client from cfg. Zero values take the defaults.
func NewClient(cfg types.HTTPConfig, logger arbor.ILogger) *Client {
	def := types.DefaultCrawlerConfig().HTTP
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if logger == nil {
		logger = arbor.NewLogger()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout
	transport.ResponseHeaderTimeout = cfg.ReadTimeout

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter:    rate.NewLimiter(limit, 1),
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

// NewClientFrom wraps an existing http.Client without rate limiting. Tests
// pass httptest server clients here.
func NewClientFrom(hc *http.Client, userAgent string) *Client {
	if userAgent == "" {
		userAgent = types.DefaultUserAgent
	}
	return &Client{
		http:       hc,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		userAgent:  userAgent,
		maxRetries: defaultMaxRetries,
		logger:     arbor.NewLogger(),
	}
}

// Do waits for the rate limiter and sends req, retrying on HTTP 429.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return DoWithRetry(ctx, c.http, req, c.maxRetries, func(attempt int, wait time.Duration) {
		c.logger.Warn().
			Str("host", req.URL.Host).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Rate limited, backing off")
	})
}

// Get is a convenience wrapper around Do for GET requests.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.Do(ctx, req)
}
