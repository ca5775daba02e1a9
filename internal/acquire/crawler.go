// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire finds and downloads papers by title. It resolves the
// venue to a likely source, builds an ordered plan of source strategies,
// and runs the plan until one source delivers the PDF.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/mengsi16/PaperCrawler/pkg/types"
)

// Recorder persists the outcome of each request.
type Recorder interface {
	Record(ctx context.Context, rec types.AcquisitionRecord) error
}

// Crawler is the entry point for acquiring papers. One crawler handles one
// request at a time and owns the browser session between OpenSession and
// CloseSession.
type Crawler struct {
	saveDir  string
	provider Provider
	session  Session
	recorder Recorder
	engine   *Engine
	logger   arbor.ILogger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithSession gives the crawler a browser session to manage. Without one,
// interactive sources are never offered.
func WithSession(s Session) Option {
	return func(c *Crawler) { c.session = s }
}

// WithRecorder records every request outcome.
func WithRecorder(r Recorder) Option {
	return func(c *Crawler) { c.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l arbor.ILogger) Option {
	return func(c *Crawler) { c.logger = l }
}

// NewCrawler creates the save directory and returns a crawler that takes
// its strategies from provider. Failure to create the save directory is
// fatal for every later request, so it is reported here.
func NewCrawler(cfg types.CrawlerConfig, provider Provider, opts ...Option) (*Crawler, error) {
	if cfg.SaveDir == "" {
		return nil, fmt.Errorf("save directory is not configured")
	}
	saveDir, err := filepath.Abs(cfg.SaveDir)
	if err != nil {
		return nil, fmt.Errorf("resolving save directory %s: %w", cfg.SaveDir, err)
	}
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating save directory %s: %w", saveDir, err)
	}

	c := &Crawler{saveDir: saveDir, provider: provider}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = arbor.NewLogger()
	}
	c.engine = NewEngine(cfg.RequestDelay, c.logger)
	return c, nil
}

// SaveDir returns the absolute save directory.
func (c *Crawler) SaveDir() string { return c.saveDir }

// OpenSession starts the browser session. It is a no-op when the session is
// already open.
func (c *Crawler) OpenSession(ctx context.Context) error {
	if c.session == nil {
		return fmt.Errorf("no browser session configured")
	}
	if c.session.Active() {
		return nil
	}
	if err := c.session.Open(ctx); err != nil {
		return fmt.Errorf("opening browser session: %w", err)
	}
	return nil
}

// CloseSession stops the browser session if it is open.
func (c *Crawler) CloseSession() error {
	if c.session == nil || !c.session.Active() {
		return nil
	}
	return c.session.Close()
}

// Acquire downloads the paper named by req. If the target file already
// exists nothing else happens. Source failures are reported in the
// Outcome; the error is non-nil only for conditions that would break every
// request, such as an unreadable save directory.
func (c *Crawler) Acquire(ctx context.Context, req types.PaperRequest) (Outcome, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return Outcome{}, fmt.Errorf("paper title is empty")
	}

	job := Job{
		Key:    Normalize(title),
		Title:  title,
		Target: TargetPath(title, c.saveDir),
	}

	if _, err := os.Stat(job.Target); err == nil {
		c.logger.Info().Str("path", job.Target).Msg("PDF already exists, skipping")
		out := Outcome{Success: true, Skipped: true, Path: job.Target}
		c.record(ctx, req, out)
		return out, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return Outcome{}, fmt.Errorf("checking %s: %w", job.Target, err)
	}

	if c.session == nil || !c.session.Active() {
		c.logger.Warn().Msg("Browser session not open, skipping ACM and IEEE")
	}

	var available []Descriptor
	if c.provider != nil {
		available = c.provider.Strategies()
	}
	plan := BuildPlan(req.Venue, available)

	venueLog := req.Venue
	if venueLog == "" {
		venueLog = "unspecified"
	}
	c.logger.Info().
		Str("title", title).
		Str("venue", venueLog).
		Str("plan", joinSources(plan.Sources())).
		Msg("Starting acquisition")

	out := c.engine.Execute(ctx, plan, job)
	if out.Success {
		c.logger.Info().Str("source", out.Source.String()).Str("path", out.Path).Msg("Acquired paper")
	} else {
		c.logger.Warn().Str("title", title).Int("attempts", len(out.Failures)).Msg("All sources failed")
	}
	c.record(ctx, req, out)
	return out, nil
}

// BatchResult holds the outcome of a batch run.
type BatchResult struct {
	Downloaded int
	Skipped    int
	Failed     int
	Outcomes   []Outcome
}

// Total returns the number of requests processed.
func (r BatchResult) Total() int {
	return r.Downloaded + r.Skipped + r.Failed
}

// HasFailures reports whether any paper could not be acquired.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// AcquireBatch processes requests in order, printing one status line per
// request and a summary. It stops early only on a fatal error or when ctx
// is cancelled between requests.
func (c *Crawler) AcquireBatch(ctx context.Context, reqs []types.PaperRequest, w io.Writer) (BatchResult, error) {
	var result BatchResult
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		out, err := c.Acquire(ctx, req)
		if err != nil {
			return result, fmt.Errorf("acquiring %q: %w", req.Title, err)
		}
		result.Outcomes = append(result.Outcomes, out)

		switch {
		case out.Skipped:
			result.Skipped++
			fmt.Fprintf(w, "skipped:     %s (already exists)\n", out.Path)
		case out.Success:
			result.Downloaded++
			fmt.Fprintf(w, "downloaded:  %s (%s)\n", out.Path, out.Source)
		default:
			result.Failed++
			fmt.Fprintf(w, "failed:      %s\n", strings.TrimSpace(req.Title))
			for _, f := range out.Failures {
				fmt.Fprintf(w, "  %-8s %s\n", f.Source, f.Summary)
			}
		}
	}
	fmt.Fprintf(w, "\nBatch summary: %d downloaded, %d skipped, %d failed (total: %d)\n",
		result.Downloaded, result.Skipped, result.Failed, result.Total())
	return result, nil
}

func (c *Crawler) record(ctx context.Context, req types.PaperRequest, out Outcome) {
	if c.recorder == nil {
		return
	}
	rec := types.AcquisitionRecord{
		Title:     strings.TrimSpace(req.Title),
		Venue:     req.Venue,
		Path:      out.Path,
		Success:   out.Success,
		Skipped:   out.Skipped,
		Source:    out.Source.String(),
		CreatedAt: time.Now().UTC(),
	}
	for _, f := range out.Failures {
		rec.Failures = append(rec.Failures, types.SourceFailure{
			Source:  f.Source.String(),
			Kind:    string(f.Kind),
			Summary: f.Summary,
		})
	}
	if err := c.recorder.Record(ctx, rec); err != nil {
		c.logger.Warn().Err(err).Str("title", rec.Title).Msg("Could not record acquisition")
	}
}

func joinSources(ids []SourceID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}
