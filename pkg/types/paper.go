// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the records and configuration shared by the crawler,
// its sources, and the CLI.
package types

import "time"

// PaperRequest asks for one paper by title. Venue is the conference or
// journal name ("S&P", "CVPR"); empty means unknown.
type PaperRequest struct {
	Title string `json:"title" yaml:"title"`
	Venue string `json:"venue,omitempty" yaml:"venue,omitempty"`
}

// SourceFailure is one failed source attempt.
type SourceFailure struct {
	Source  string `json:"source" yaml:"source"`
	Kind    string `json:"kind" yaml:"kind"`
	Summary string `json:"summary" yaml:"summary"`
}

// AcquisitionRecord is the persisted result of one request.
type AcquisitionRecord struct {
	// ID is unique per record.
	ID string `json:"id" yaml:"id"`

	// RunID groups the records of one CLI invocation.
	RunID string `json:"run_id" yaml:"run_id"`

	Title string `json:"title" yaml:"title"`
	Venue string `json:"venue,omitempty" yaml:"venue,omitempty"`

	// Path is the target PDF path, whether or not it was acquired.
	Path string `json:"path" yaml:"path"`

	Success bool `json:"success" yaml:"success"`

	// Skipped is true when the PDF already existed.
	Skipped bool `json:"skipped" yaml:"skipped"`

	// Source is the source that delivered the PDF.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	Failures []SourceFailure `json:"failures,omitempty" yaml:"failures,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
