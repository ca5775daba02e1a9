// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

// fallbackOrder is tried after the primary source, and on its own when no
// venue is known. The broad aggregator goes first, the publisher platforms
// next, and the preprint archive last as the catch-all.
var fallbackOrder = []SourceID{SourceCore, SourceACM, SourceIEEE, SourceArxiv}

// FallbackOrder returns a copy of the fixed fallback order.
func FallbackOrder() []SourceID {
	return append([]SourceID(nil), fallbackOrder...)
}

// BuildPlan orders the available strategies for a request. The source that
// publishes venue goes first when it is available; the fallback sources
// follow in fixed order, skipping the primary and anything unavailable.
// Sources outside the fallback order run only as a primary.
func BuildPlan(venue string, available []Descriptor) Plan {
	byID := make(map[SourceID]Descriptor, len(available))
	for _, d := range available {
		if _, dup := byID[d.Source]; !dup {
			byID[d.Source] = d
		}
	}

	plan := make(Plan, 0, len(fallbackOrder)+1)
	var primary SourceID
	if src, ok := ResolveVenue(venue); ok {
		if d, avail := byID[src]; avail {
			primary = src
			plan = append(plan, d)
		}
	}

	for _, src := range fallbackOrder {
		if src == primary {
			continue
		}
		if d, ok := byID[src]; ok {
			plan = append(plan, d)
		}
	}
	return plan
}
