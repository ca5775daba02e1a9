// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import "strings"

// SourceID names one external source. IDs are lower-case.
type SourceID string

const (
	SourceArxiv   SourceID = "arxiv"
	SourceCore    SourceID = "core"
	SourceACM     SourceID = "acm"
	SourceIEEE    SourceID = "ieee"
	SourceAAAI    SourceID = "aaai"
	SourceNeurIPS SourceID = "neurips"
	SourceCVPR    SourceID = "cvpr"
	SourceICCV    SourceID = "iccv"
)

func (s SourceID) String() string { return string(s) }

// venueSources maps lower-cased venue names to the platform that publishes
// their proceedings.
var venueSources = map[string]SourceID{
	"s&p":     SourceIEEE,
	"oakland": SourceIEEE,
	"ccs":     SourceACM,
	"www":     SourceACM,
	"aaai":    SourceAAAI,
	"neurips": SourceNeurIPS,
	"cvpr":    SourceCVPR,
	"iccv":    SourceICCV,
}

// ResolveVenue returns the source that publishes venue. Matching is exact
// and case-insensitive. An empty or unknown venue reports false; that is
// an ordinary outcome, not an error.
func ResolveVenue(venue string) (SourceID, bool) {
	venue = strings.ToLower(strings.TrimSpace(venue))
	if venue == "" {
		return "", false
	}
	src, ok := venueSources[venue]
	return src, ok
}
