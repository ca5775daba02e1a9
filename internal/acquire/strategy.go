// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import "context"

// Capability tells the engine how a strategy must be invoked.
type Capability int

const (
	// RemoteFetch strategies are stateless HTTP clients. They are safe to
	// construct per request and take the normalized search key.
	RemoteFetch Capability = iota

	// InteractiveSession strategies drive the shared browser session. They
	// block until the completion watcher confirms the file, take the
	// original title, and must never run concurrently with each other.
	InteractiveSession
)

func (c Capability) String() string {
	switch c {
	case RemoteFetch:
		return "remote"
	case InteractiveSession:
		return "interactive"
	default:
		return "unknown"
	}
}

// Fetcher downloads a PDF over the network. A nil error means the complete
// PDF is at targetPath; on any error nothing is left at targetPath.
type Fetcher interface {
	Fetch(ctx context.Context, key, targetPath string) error
}

// SessionDownloader downloads a PDF by driving the shared browser session.
// The contract on targetPath is the same as for Fetcher.
type SessionDownloader interface {
	Download(ctx context.Context, title, targetPath string) error
}

// Descriptor binds a source to its strategy. Exactly one of Fetcher and
// Session is set, matching Capability.
type Descriptor struct {
	Source     SourceID
	Capability Capability
	Fetcher    Fetcher
	Session    SessionDownloader
}

// Plan is the ordered list of strategies to try for one request. No source
// appears twice.
type Plan []Descriptor

// Sources returns the source IDs of the plan in order.
func (p Plan) Sources() []SourceID {
	ids := make([]SourceID, len(p))
	for i, d := range p {
		ids[i] = d.Source
	}
	return ids
}

// Provider supplies the strategies available for the next request. It is
// consulted once per request; interactive strategies appear only while the
// session is open.
type Provider interface {
	Strategies() []Descriptor
}

// Session is the lifecycle of the shared browser session.
type Session interface {
	Open(ctx context.Context) error
	Close() error
	Active() bool
}
