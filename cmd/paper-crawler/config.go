// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/mengsi16/PaperCrawler/internal/secrets"
	"github.com/mengsi16/PaperCrawler/pkg/types"
)

// setDefaults registers every config key so environment variables and
// Unmarshal see them even when no config file exists.
func setDefaults(v *viper.Viper, d types.CrawlerConfig) {
	v.SetDefault("save_dir", d.SaveDir)
	v.SetDefault("request_delay", d.RequestDelay)
	v.SetDefault("core_api_key", d.CoreAPIKey)
	v.SetDefault("ledger_path", d.LedgerPath)
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.connect_timeout", d.HTTP.ConnectTimeout)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)
	v.SetDefault("http.requests_per_second", d.HTTP.RequestsPerSecond)
	v.SetDefault("http.max_retries", d.HTTP.MaxRetries)

	v.SetDefault("session.enabled", d.Session.Enabled)
	v.SetDefault("session.headless", d.Session.Headless)
	v.SetDefault("session.user_data_dir", d.Session.UserDataDir)
	v.SetDefault("session.exec_path", d.Session.ExecPath)
	v.SetDefault("session.locate_timeout", d.Session.LocateTimeout)
	v.SetDefault("session.page_load_timeout", d.Session.PageLoadTimeout)

	v.SetDefault("watcher.poll_interval", d.Watcher.PollInterval)
	v.SetDefault("watcher.timeout", d.Watcher.Timeout)
	v.SetDefault("watcher.settle_delay", d.Watcher.SettleDelay)
	v.SetDefault("watcher.markers", d.Watcher.Markers)
}

// loadConfig decodes the merged flags, environment, and config file. The
// CORE key falls back to the secrets directory.
func loadConfig(v *viper.Viper, s secrets.Secrets) (types.CrawlerConfig, error) {
	var cfg types.CrawlerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	if cfg.CoreAPIKey == "" {
		cfg.CoreAPIKey = s.Get(secrets.CoreAPIKey)
	}
	return cfg, nil
}
