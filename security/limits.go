package security

import (
	"errors"
	"time"
)

// ErrLimitExceeded is wrapped by every error that reports a Limits violation.
var ErrLimitExceeded = errors.New("limit exceeded")

// Limits defines security boundaries for loading and rendering PDFs.
// These limits help prevent resource exhaustion (e.g., zip bombs, reference cycles).
type Limits struct {
	// Maximum size of the raw document, including documents fetched by URL. Default: 200 MB.
	MaxFileSize int64

	// Maximum decompressed stream size (prevent zip bombs). Default: 100 MB.
	MaxDecompressedSize int64

	// Maximum indirect reference depth (prevent stack overflow). Default: 100.
	MaxIndirectDepth int

	// Maximum XRef chain depth (Prev entries). Default: 50.
	MaxXRefDepth int

	// Maximum page tree nesting depth. Default: 64.
	MaxPageTreeDepth int

	// Maximum number of pages. Default: 100,000.
	MaxPages int

	// Maximum rendered surface edge in pixels. Default: 20,000.
	MaxSurfaceEdge int

	// Maximum total parse time. Default: 1m.
	MaxParseTime time.Duration
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:         200 * 1024 * 1024, // 200 MB
		MaxDecompressedSize: 100 * 1024 * 1024, // 100 MB
		MaxIndirectDepth:    100,
		MaxXRefDepth:        50,
		MaxPageTreeDepth:    64,
		MaxPages:            100000,
		MaxSurfaceEdge:      20000,
		MaxParseTime:        time.Minute,
	}
}

// WithDefaults fills every zero field from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.MaxFileSize <= 0 {
		l.MaxFileSize = d.MaxFileSize
	}
	if l.MaxDecompressedSize <= 0 {
		l.MaxDecompressedSize = d.MaxDecompressedSize
	}
	if l.MaxIndirectDepth <= 0 {
		l.MaxIndirectDepth = d.MaxIndirectDepth
	}
	if l.MaxXRefDepth <= 0 {
		l.MaxXRefDepth = d.MaxXRefDepth
	}
	if l.MaxPageTreeDepth <= 0 {
		l.MaxPageTreeDepth = d.MaxPageTreeDepth
	}
	if l.MaxPages <= 0 {
		l.MaxPages = d.MaxPages
	}
	if l.MaxSurfaceEdge <= 0 {
		l.MaxSurfaceEdge = d.MaxSurfaceEdge
	}
	if l.MaxParseTime <= 0 {
		l.MaxParseTime = d.MaxParseTime
	}
	return l
}
