// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
)

// Sentinel errors for the failure kinds a source attempt can end in.
// Sources wrap them with fmt.Errorf("%w: ...", ErrNotFound) so the engine
// can classify the failure without knowing the source.
var (
	// ErrNotFound means the source has no matching record.
	ErrNotFound = errors.New("not found")

	// ErrFormatMismatch means a resolved link did not serve a PDF.
	ErrFormatMismatch = errors.New("not a pdf")

	// ErrTransport covers network, timeout, and protocol errors.
	ErrTransport = errors.New("transport error")

	// ErrAutomation means the browser session could not complete the
	// download: an element was missing, an access wall blocked it, or the
	// completion wait timed out.
	ErrAutomation = errors.New("automation error")

	// ErrFilesystem means a rename, delete, or write failed.
	ErrFilesystem = errors.New("filesystem error")
)

// Kind classifies a failed source attempt.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindFormatMismatch Kind = "format_mismatch"
	KindTransport      Kind = "transport"
	KindAutomation     Kind = "automation"
	KindFilesystem     Kind = "filesystem"
)

// Classify maps err to a failure kind. Errors that carry no sentinel are
// classified by their concrete type; anything else counts as transport.
// Filesystem errors are checked before net.Error: syscall.Errno satisfies
// net.Error, so a wrapped errno would otherwise read as transport.
func Classify(err error) Kind {
	var netErr net.Error
	var pathErr *fs.PathError
	var linkErr *os.LinkError

	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrFormatMismatch):
		return KindFormatMismatch
	case errors.Is(err, ErrAutomation):
		return KindAutomation
	case errors.Is(err, ErrFilesystem):
		return KindFilesystem
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.As(err, &pathErr), errors.As(err, &linkErr):
		return KindFilesystem
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return KindTransport
	default:
		return KindTransport
	}
}
