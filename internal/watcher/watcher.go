// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package watcher detects when a browser-triggered download has finished.
//
// The browser writes into a directory under a name of its own choosing and
// gives no completion signal, so completion is inferred from the directory:
// take a snapshot before triggering the download, wait until no in-progress
// marker files remain, then claim the first new file and rename it to the
// target path. The protocol is racy by nature. A browser that drops the
// marker suffix before it flushes the last bytes is covered by the settle
// delay, not prevented.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/mengsi16/PaperCrawler/internal/acquire"
	"github.com/mengsi16/PaperCrawler/pkg/types"
)

// chromeTempPrefix marks the hidden scratch files Chrome creates on Linux
// before the visible .crdownload file appears.
const chromeTempPrefix = ".com.google.Chrome."

// Snapshot is the set of entry names in the download directory at one
// point in time.
type Snapshot map[string]struct{}

// Watcher polls one download directory.
type Watcher struct {
	dir     string
	poll    time.Duration
	timeout time.Duration
	settle  time.Duration
	markers []string
	logger  arbor.ILogger
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// New returns a watcher for dir. Zero values in cfg take the defaults.
func New(dir string, cfg types.WatcherConfig, logger arbor.ILogger) *Watcher {
	def := types.DefaultCrawlerConfig().Watcher
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if len(cfg.Markers) == 0 {
		cfg.Markers = def.Markers
	}
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Watcher{
		dir:     dir,
		poll:    cfg.PollInterval,
		timeout: cfg.Timeout,
		settle:  cfg.SettleDelay,
		markers: cfg.Markers,
		logger:  logger,
		sleep:   sleepContext,
		now:     time.Now,
	}
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Snapshot lists the directory. Call it before triggering the download.
func (w *Watcher) Snapshot() (Snapshot, error) {
	names, err := w.list()
	if err != nil {
		return nil, err
	}
	snap := make(Snapshot, len(names))
	for _, n := range names {
		snap[n] = struct{}{}
	}
	return snap, nil
}

// Wait blocks until a download that started after before has finished and
// renames it to target. While any new in-progress marker is present nothing
// is claimed. When several new files appear at once the lexicographically
// first is claimed and the others are left in place.
func (w *Watcher) Wait(ctx context.Context, before Snapshot, target string) error {
	deadline := w.now().Add(w.timeout)
	sawMarker := false

	for {
		names, err := w.list()
		if err != nil {
			return err
		}

		if w.inProgress(names, before) {
			sawMarker = true
		} else if fresh := newEntries(names, before); len(fresh) > 0 {
			return w.claim(ctx, fresh, target)
		}

		if !w.now().Before(deadline) {
			if sawMarker {
				return fmt.Errorf("%w: download still in progress after %v", acquire.ErrAutomation, w.timeout)
			}
			return fmt.Errorf("%w: download never started within %v", acquire.ErrAutomation, w.timeout)
		}

		if err := w.sleep(ctx, w.poll); err != nil {
			return fmt.Errorf("%w: waiting for download: %v", acquire.ErrAutomation, err)
		}
	}
}

func (w *Watcher) claim(ctx context.Context, fresh []string, target string) error {
	name := fresh[0]
	if len(fresh) > 1 {
		w.logger.Warn().
			Str("claimed", name).
			Int("new_files", len(fresh)).
			Str("dir", w.dir).
			Msg("Several downloads finished at once, leaving the rest in place")
	}

	if w.settle > 0 {
		if err := w.sleep(ctx, w.settle); err != nil {
			return fmt.Errorf("%w: settling download: %v", acquire.ErrAutomation, err)
		}
	}

	src := filepath.Join(w.dir, name)
	if err := os.Rename(src, target); err != nil {
		return fmt.Errorf("%w: renaming %s: %v", acquire.ErrFilesystem, name, err)
	}
	w.logger.Debug().Str("from", name).Str("to", filepath.Base(target)).Msg("Download complete")
	return nil
}

// inProgress reports whether any name is an unfinished download. Markers
// already present in before are leftovers of an abandoned download and are
// ignored.
func (w *Watcher) inProgress(names []string, before Snapshot) bool {
	for _, n := range names {
		if _, stale := before[n]; stale {
			continue
		}
		if strings.HasPrefix(n, chromeTempPrefix) {
			return true
		}
		for _, m := range w.markers {
			if strings.HasSuffix(n, m) {
				return true
			}
		}
	}
	return false
}

// list returns the names of the regular files in the directory.
func (w *Watcher) list() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", acquire.ErrFilesystem, w.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// newEntries returns the sorted names absent from before.
func newEntries(names []string, before Snapshot) []string {
	var fresh []string
	for _, n := range names {
		if _, ok := before[n]; !ok {
			fresh = append(fresh, n)
		}
	}
	sort.Strings(fresh)
	return fresh
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
