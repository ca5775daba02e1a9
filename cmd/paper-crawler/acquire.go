// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mengsi16/PaperCrawler/internal/acquire"
	"github.com/mengsi16/PaperCrawler/internal/batch"
	"github.com/mengsi16/PaperCrawler/internal/httputil"
	"github.com/mengsi16/PaperCrawler/internal/ledger"
	"github.com/mengsi16/PaperCrawler/internal/session"
	"github.com/mengsi16/PaperCrawler/internal/sources"
	"github.com/mengsi16/PaperCrawler/internal/watcher"
	"github.com/mengsi16/PaperCrawler/pkg/types"
)

var acquireCmd = &cobra.Command{
	Use:   "acquire [titles...]",
	Short: "Download papers by title",
	Long: `Acquire downloads each paper to <save-dir>/<sanitized title>.pdf. Papers
already on disk are skipped. The venue, when given, chooses which source is
tried first; the remaining sources are tried in a fixed fallback order.

Titles come from the arguments or from a YAML request file (--batch):

  venue: CVPR
  papers:
    - Deep Residual Learning for Image Recognition
    - title: Attention Is All You Need
      venue: NeurIPS

The Chrome session for ACM and IEEE opens before the first paper and closes
after the last. Its window is shown by default so logins and verification
pages can be completed by hand; --headless hides it.`,
	RunE: runAcquire,
}

func init() {
	acquireCmd.Flags().String("venue", "", "venue of the titles given as arguments (e.g. CVPR, S&P)")
	acquireCmd.Flags().String("batch", "", "YAML request file")
	acquireCmd.Flags().String("failed-out", "", "write failed requests to this YAML file")
	acquireCmd.Flags().String("save-dir", "", "directory for downloaded PDFs (default downloaded_papers)")
	acquireCmd.Flags().Bool("headless", false, "run Chrome without a window")
	acquireCmd.Flags().Bool("no-session", false, "do not open a browser session (skips ACM and IEEE)")
	acquireCmd.Flags().Duration("delay", 0, "delay before each remote source attempt (default 2s)")

	_ = viper.BindPFlag("save_dir", acquireCmd.Flags().Lookup("save-dir"))
	_ = viper.BindPFlag("session.headless", acquireCmd.Flags().Lookup("headless"))
	_ = viper.BindPFlag("request_delay", acquireCmd.Flags().Lookup("delay"))

	rootCmd.AddCommand(acquireCmd)
}

func runAcquire(cmd *cobra.Command, args []string) error {
	reqs, err := collectRequests(cmd, args)
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		return fmt.Errorf("provide one or more paper titles or a --batch file")
	}

	cfg, err := loadConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return err
	}
	if noSession, _ := cmd.Flags().GetBool("no-session"); noSession {
		cfg.Session.Enabled = false
	}

	logger := newLogger(cfg.LogLevel)
	ctx := cmd.Context()

	saveDir, err := filepath.Abs(cfg.SaveDir)
	if err != nil {
		return fmt.Errorf("resolving save directory: %w", err)
	}
	cfg.SaveDir = saveDir

	client := httputil.NewClient(cfg.HTTP, logger)
	registry := sources.NewRegistry(client, cfg.CoreAPIKey, logger)
	if cfg.CoreAPIKey == "" {
		logger.Debug().Msg("No CORE API key configured, CORE source disabled")
	}

	var opts []acquire.Option
	opts = append(opts, acquire.WithLogger(logger))

	var browser *session.Browser
	if cfg.Session.Enabled {
		browser = session.New(cfg.Session, saveDir, cfg.HTTP.UserAgent, logger)
		timing := sources.DefaultTiming()
		timing.Locate = cfg.Session.LocateTimeout
		registry.WithInteractive(browser, browser, watcher.New(saveDir, cfg.Watcher, logger), timing)
		opts = append(opts, acquire.WithSession(browser))
	}

	if cfg.LedgerPath != "" {
		store, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Debug().Str("run_id", store.RunID()).Str("ledger", cfg.LedgerPath).Msg("Recording to ledger")
		opts = append(opts, acquire.WithRecorder(store))
	}

	crawler, err := acquire.NewCrawler(cfg, registry, opts...)
	if err != nil {
		return err
	}

	if browser != nil {
		if err := crawler.OpenSession(ctx); err != nil {
			logger.Warn().Err(err).Msg("Browser session unavailable, continuing with remote sources")
		}
		defer func() {
			if err := crawler.CloseSession(); err != nil {
				logger.Warn().Err(err).Msg("Closing browser session")
			}
		}()
	}

	result, err := crawler.AcquireBatch(ctx, reqs, os.Stdout)
	if err != nil {
		return err
	}

	if out, _ := cmd.Flags().GetString("failed-out"); out != "" && result.HasFailures() {
		if err := batch.Write(out, failedRequests(reqs, result)); err != nil {
			return err
		}
		fmt.Printf("Failed requests written to %s\n", out)
	}

	if result.HasFailures() {
		return fmt.Errorf("%d paper(s) could not be acquired", result.Failed)
	}
	return nil
}

// collectRequests merges the argument titles and the --batch file.
func collectRequests(cmd *cobra.Command, args []string) ([]types.PaperRequest, error) {
	venue, _ := cmd.Flags().GetString("venue")
	var reqs []types.PaperRequest
	for _, title := range args {
		reqs = append(reqs, types.PaperRequest{Title: title, Venue: venue})
	}

	if path, _ := cmd.Flags().GetString("batch"); path != "" {
		fromFile, err := batch.Load(path)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, fromFile...)
	}
	return reqs, nil
}

// failedRequests pairs the batch outcomes with their requests.
func failedRequests(reqs []types.PaperRequest, result acquire.BatchResult) []types.PaperRequest {
	var failed []types.PaperRequest
	for i, out := range result.Outcomes {
		if i < len(reqs) && !out.Success {
			failed = append(failed, reqs[i])
		}
	}
	return failed
}
