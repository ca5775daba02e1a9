// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds settings for the network client shared by every remote
// source.
type HTTPConfig struct {
	// Timeout bounds a whole request including the streamed body.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// ConnectTimeout bounds dialing and the TLS handshake.
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout" mapstructure:"connect_timeout"`

	// ReadTimeout bounds the wait for response headers.
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`

	// UserAgent is sent with every request.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// RequestsPerSecond caps the request rate of one client (default 2).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// MaxRetries is the number of retries on HTTP 429 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// SessionConfig holds settings for the interactive browser session.
type SessionConfig struct {
	// Enabled controls whether the crawler opens a browser session at all.
	// Without a session the ACM and IEEE sources are unavailable.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Headless runs Chrome without a window. Headful mode lets the user
	// complete logins and verification challenges by hand.
	Headless bool `json:"headless" yaml:"headless" mapstructure:"headless"`

	// UserDataDir points Chrome at an existing profile (institutional logins).
	UserDataDir string `json:"user_data_dir" yaml:"user_data_dir" mapstructure:"user_data_dir"`

	// ExecPath overrides the Chrome binary.
	ExecPath string `json:"exec_path" yaml:"exec_path" mapstructure:"exec_path"`

	// LocateTimeout bounds the wait for a single element selector.
	LocateTimeout time.Duration `json:"locate_timeout" yaml:"locate_timeout" mapstructure:"locate_timeout"`

	// PageLoadTimeout bounds a single navigation.
	PageLoadTimeout time.Duration `json:"page_load_timeout" yaml:"page_load_timeout" mapstructure:"page_load_timeout"`
}

// WatcherConfig holds settings for download completion detection.
type WatcherConfig struct {
	// PollInterval is the delay between directory listings (default 1s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`

	// Timeout bounds one completion wait (default 120s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// SettleDelay is waited after a finished file shows up and before it is
	// renamed (default 2s).
	SettleDelay time.Duration `json:"settle_delay" yaml:"settle_delay" mapstructure:"settle_delay"`

	// Markers lists the filename suffixes of in-progress downloads.
	Markers []string `json:"markers" yaml:"markers" mapstructure:"markers"`
}

// CrawlerConfig groups every setting of the paper crawler.
type CrawlerConfig struct {
	// SaveDir holds finished PDFs and the browser's raw download output.
	SaveDir string `json:"save_dir" yaml:"save_dir" mapstructure:"save_dir"`

	// RequestDelay is waited before every remote source attempt (default 2s).
	RequestDelay time.Duration `json:"request_delay" yaml:"request_delay" mapstructure:"request_delay"`

	// CoreAPIKey enables the CORE source. Without it CORE is not offered.
	CoreAPIKey string `json:"core_api_key,omitempty" yaml:"core_api_key,omitempty" mapstructure:"core_api_key"`

	// LedgerPath is the SQLite file recording acquisitions. Empty disables it.
	LedgerPath string `json:"ledger_path" yaml:"ledger_path" mapstructure:"ledger_path"`

	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`

	HTTP    HTTPConfig    `json:"http" yaml:"http" mapstructure:"http"`
	Session SessionConfig `json:"session" yaml:"session" mapstructure:"session"`
	Watcher WatcherConfig `json:"watcher" yaml:"watcher" mapstructure:"watcher"`
}

// DefaultUserAgent is a desktop Chrome user agent; several sources serve
// reduced pages to unknown clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DefaultCrawlerConfig returns the settings used when nothing is configured.
func DefaultCrawlerConfig() CrawlerConfig {
	return CrawlerConfig{
		SaveDir:      "downloaded_papers",
		RequestDelay: 2 * time.Second,
		LedgerPath:   "paper-crawler.db",
		LogLevel:     "info",
		HTTP: HTTPConfig{
			Timeout:           120 * time.Second,
			ConnectTimeout:    20 * time.Second,
			ReadTimeout:       60 * time.Second,
			UserAgent:         DefaultUserAgent,
			RequestsPerSecond: 2,
			MaxRetries:        5,
		},
		Session: SessionConfig{
			Enabled:         true,
			LocateTimeout:   25 * time.Second,
			PageLoadTimeout: 30 * time.Second,
		},
		Watcher: WatcherConfig{
			PollInterval: time.Second,
			Timeout:      120 * time.Second,
			SettleDelay:  2 * time.Second,
			Markers:      []string{".crdownload", ".tmp", ".part"},
		},
	}
}
