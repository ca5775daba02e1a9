// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"
)

// Job is the input of one plan execution.
type Job struct {
	// Key is the normalized title passed to remote strategies.
	Key string
	// Title is the trimmed original title passed to interactive strategies.
	Title string
	// Target is where the PDF must end up.
	Target string
}

// Failure records one failed strategy attempt.
type Failure struct {
	Source  SourceID
	Kind    Kind
	Summary string
}

// Outcome is the result of one request.
type Outcome struct {
	Success bool
	// Skipped is set when the PDF already existed and nothing ran.
	Skipped bool
	Path    string
	// Source delivered the PDF; empty unless a strategy succeeded.
	Source   SourceID
	Failures []Failure
}

// Engine runs a plan strictly in order and stops at the first success.
type Engine struct {
	delay  time.Duration
	logger arbor.ILogger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewEngine returns an engine that waits delay before every remote attempt.
func NewEngine(delay time.Duration, logger arbor.ILogger) *Engine {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Engine{delay: delay, logger: logger, sleep: sleepContext}
}

// Execute tries each strategy of plan in order. A strategy error or panic
// is recorded and the next strategy runs; only context cancellation stops
// the plan early. Interactive strategies share one session, so the plan is
// never run concurrently.
func (e *Engine) Execute(ctx context.Context, plan Plan, job Job) Outcome {
	out := Outcome{Path: job.Target}

	for _, d := range plan {
		if err := ctx.Err(); err != nil {
			e.logger.Warn().Err(err).Str("source", d.Source.String()).Msg("Plan interrupted before attempt")
			return out
		}
		if d.Capability == RemoteFetch && e.delay > 0 {
			if err := e.sleep(ctx, e.delay); err != nil {
				e.logger.Warn().Err(err).Str("source", d.Source.String()).Msg("Plan interrupted before attempt")
				return out
			}
		}

		start := time.Now()
		e.logger.Info().
			Str("source", d.Source.String()).
			Str("capability", d.Capability.String()).
			Msg("Trying source")

		err := e.invoke(ctx, d, job)
		if err == nil {
			if _, statErr := os.Stat(job.Target); statErr != nil {
				err = fmt.Errorf("%w: %s reported success but %s is missing", ErrFilesystem, d.Source, job.Target)
			}
		}
		if err == nil {
			e.logger.Info().
				Str("source", d.Source.String()).
				Dur("elapsed", time.Since(start)).
				Msg("Source delivered PDF")
			out.Success = true
			out.Source = d.Source
			return out
		}

		kind := Classify(err)
		e.logger.Warn().
			Err(err).
			Str("source", d.Source.String()).
			Str("kind", string(kind)).
			Dur("elapsed", time.Since(start)).
			Msg("Source failed")
		out.Failures = append(out.Failures, Failure{Source: d.Source, Kind: kind, Summary: err.Error()})
		e.discardPartial(job.Target, d.Source)
	}

	return out
}

// invoke calls the strategy with the input its capability expects and turns
// a panic into an error.
func (e *Engine) invoke(ctx context.Context, d Descriptor, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			kind := ErrTransport
			if d.Capability == InteractiveSession {
				kind = ErrAutomation
			}
			err = fmt.Errorf("%w: %s panicked: %v", kind, d.Source, r)
		}
	}()

	switch d.Capability {
	case RemoteFetch:
		if d.Fetcher == nil {
			return fmt.Errorf("%w: %s has no fetcher", ErrTransport, d.Source)
		}
		return d.Fetcher.Fetch(ctx, job.Key, job.Target)
	case InteractiveSession:
		if d.Session == nil {
			return fmt.Errorf("%w: %s has no session downloader", ErrAutomation, d.Source)
		}
		return d.Session.Download(ctx, job.Title, job.Target)
	default:
		return fmt.Errorf("%w: %s has unknown capability %d", ErrTransport, d.Source, d.Capability)
	}
}

// discardPartial removes whatever a failed strategy left at target so the
// next strategy starts clean.
func (e *Engine) discardPartial(target string, src SourceID) {
	err := os.Remove(target)
	switch {
	case err == nil:
		e.logger.Warn().Str("source", src.String()).Str("path", target).Msg("Removed partial file left by failed source")
	case !errors.Is(err, os.ErrNotExist):
		e.logger.Error().Err(err).Str("path", target).Msg("Could not remove partial file")
	}
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
