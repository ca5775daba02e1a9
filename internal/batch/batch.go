// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batch reads and writes request files: YAML lists of papers to
// acquire in one run.
//
// A file is either a sequence of entries or a mapping with a papers
// sequence and an optional default venue:
//
//	venue: CVPR
//	papers:
//	  - Deep Residual Learning for Image Recognition
//	  - title: Attention Is All You Need
//	    venue: NeurIPS
//
// An entry is a bare title or a {title, venue} mapping.
package batch

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/mengsi16/PaperCrawler/pkg/types"
)

// File is the mapping form of a request file.
type File struct {
	Venue  string  `yaml:"venue,omitempty"`
	Papers []Entry `yaml:"papers"`
}

// Entry is one request. It decodes from a scalar title or a mapping.
type Entry types.PaperRequest

// UnmarshalYAML accepts a bare title or a {title, venue} mapping.
func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Title = node.Value
		return nil
	}
	var req types.PaperRequest
	if err := node.Decode(&req); err != nil {
		return err
	}
	*e = Entry(req)
	return nil
}

// Parse decodes a request file. Entries with blank titles are dropped and
// entries without a venue take the file's default venue.
func Parse(data []byte) ([]types.PaperRequest, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing request file: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	var f File
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&f.Papers); err != nil {
			return nil, fmt.Errorf("parsing request list: %w", err)
		}
	case yaml.MappingNode:
		if err := doc.Decode(&f); err != nil {
			return nil, fmt.Errorf("parsing request file: %w", err)
		}
	default:
		return nil, fmt.Errorf("parsing request file: expected a list or a mapping with papers")
	}

	reqs := make([]types.PaperRequest, 0, len(f.Papers))
	for _, e := range f.Papers {
		req := types.PaperRequest{
			Title: strings.TrimSpace(e.Title),
			Venue: strings.TrimSpace(e.Venue),
		}
		if req.Title == "" {
			continue
		}
		if req.Venue == "" {
			req.Venue = f.Venue
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Load reads and parses the request file at path.
func Load(path string) ([]types.PaperRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading request file: %w", err)
	}
	return Parse(data)
}

// Write saves reqs as a request file, for example to retry failures later.
func Write(path string, reqs []types.PaperRequest) error {
	f := File{Papers: make([]Entry, len(reqs))}
	for i, r := range reqs {
		f.Papers[i] = Entry(r)
	}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshaling request file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
