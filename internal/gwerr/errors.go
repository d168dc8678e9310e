// Package gwerr defines the typed error taxonomy shared by the storage RPC
// client, the cache store, and the request dispatcher. Every collaborator in
// the gateway returns one of these kinds (wrapped with context via %w)
// instead of bare errors, so the dispatcher can map failures to HTTP status
// codes without string matching.
package gwerr

import "errors"

// Kind identifies one of the error categories the gateway core
// distinguishes when mapping a failure to an HTTP response.
type Kind int

const (
	// KindNotFound means the requested key has no live record.
	KindNotFound Kind = iota
	// KindTimeout means an RPC call exceeded its deadline.
	KindTimeout
	// KindInternal means the collaborator failed for a reason the caller
	// cannot act on.
	KindInternal
	// KindBadRange means a byte range could not be satisfied.
	KindBadRange
	// KindBadRequest means the inbound HTTP request was malformed.
	KindBadRequest
	// KindRolledBack means a large upload failed and its chunks were
	// rolled back; surfaced to the dispatcher as an internal error.
	KindRolledBack
	// KindCacheMiss is internal to the cache layer and must never reach
	// a client as a distinct status.
	KindCacheMiss
)

// Error is a typed error carrying a Kind alongside the usual message chain.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound, Timeout, Internal, BadRange, BadRequest, RolledBack are
// convenience constructors mirroring the Kind constants.
func NotFound(op string, err error) *Error   { return New(KindNotFound, op, err) }
func Timeout(op string, err error) *Error    { return New(KindTimeout, op, err) }
func Internal(op string, err error) *Error   { return New(KindInternal, op, err) }
func BadRange(op string, err error) *Error   { return New(KindBadRange, op, err) }
func BadRequest(op string, err error) *Error { return New(KindBadRequest, op, err) }
func RolledBack(op string, err error) *Error { return New(KindRolledBack, op, err) }

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, defaulting to KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err's Kind equals kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
