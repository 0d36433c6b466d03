// Package errs defines the typed error kinds propagated through the session
// pipeline (spec.md §7). Each kind wraps an underlying cause and carries just
// enough context for callers to decide retry/evict/report behavior without
// string-matching error text.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies where in the pipeline an error originated.
type Kind string

const (
	KindAdapter     Kind = "adapter"      // upstream timing feed fetch failed
	KindDataQuality Kind = "data_quality" // fetched data failed validation
	KindCache       Kind = "cache"        // disk cache read/write failed
	KindProtocol    Kind = "protocol"     // malformed client control message
	KindTransport   Kind = "transport"    // websocket/network failure
)

// Error is the typed error wrapper propagated by every package in the
// pipeline. Use As/Is against *Error (or the Kind via Is helpers below)
// rather than matching on Error() text.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "fetch_timing", "seek"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Adapter wraps err as a KindAdapter error.
func Adapter(op string, err error) *Error { return New(KindAdapter, op, err) }

// DataQuality wraps err as a KindDataQuality error.
func DataQuality(op string, err error) *Error { return New(KindDataQuality, op, err) }

// Cache wraps err as a KindCache error.
func Cache(op string, err error) *Error { return New(KindCache, op, err) }

// Protocol wraps err as a KindProtocol error.
func Protocol(op string, err error) *Error { return New(KindProtocol, op, err) }

// Transport wraps err as a KindTransport error.
func Transport(op string, err error) *Error { return New(KindTransport, op, err) }

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
