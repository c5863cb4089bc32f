package fetcher

import (
	"errors"
	"fmt"

	"github.com/roach88/duelsync/internal/engine"
)

// ErrorKind categorizes fetch failures.
type ErrorKind int

const (
	// KindTransport is a failed page request (network, timeout, indexer error).
	KindTransport ErrorKind = iota + 1
	// KindInvalidQuery is a query rejected before any request was made.
	KindInvalidQuery
	// KindSuperseded is a fetch whose generation was superseded while it ran;
	// its remaining pages were discarded.
	KindSuperseded
	// KindMerge is a batch the engine refused for any other reason.
	KindMerge
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindInvalidQuery:
		return "invalid query"
	case KindSuperseded:
		return "superseded"
	case KindMerge:
		return "merge"
	}
	return "unknown"
}

// Error is returned by Fetch. Pages merged before the failure stay merged.
type Error struct {
	Kind    ErrorKind
	Purpose string
	Page    int // page being requested when the fetch failed, 1-based
	Err     error
}

func (e *Error) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("fetch %s: %s at page %d: %v", e.Purpose, e.Kind, e.Page, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Purpose, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is a failed page request.
func IsTransport(err error) bool {
	return isKind(err, KindTransport)
}

// IsSuperseded reports whether the fetch was discarded because the active
// query changed while it ran.
func IsSuperseded(err error) bool {
	return isKind(err, KindSuperseded)
}

func isKind(err error, kind ErrorKind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// mergeError classifies an engine rejection.
func mergeError(purpose string, page int, err error) *Error {
	kind := KindMerge
	if engine.IsStaleError(err) {
		kind = KindSuperseded
	}
	return &Error{Kind: kind, Purpose: purpose, Page: page, Err: err}
}
