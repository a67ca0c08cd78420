// Package errs defines the typed error taxonomy surfaced by the core engine,
// orchestrator, and coordinator. Every error the system returns to a caller
// wraps one of the Kinds below so transport and broker code can branch on
// error class without string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies the class of error per the error-handling design. Kinds
// are stable strings: they cross process boundaries in the error envelope
// and must not be renamed without a wire-compat note.
type Kind string

const (
	// InvalidValue marks typed-object validation failures (internal/value).
	InvalidValue Kind = "InvalidValue"
	// InvalidIdentifier marks branded-type constructor/assertion failures
	// (internal/ident).
	InvalidIdentifier Kind = "InvalidIdentifier"
	// EntityNotFound marks update/delete/get on a missing entity id.
	EntityNotFound Kind = "EntityNotFound"
	// DuplicateEntity marks create on an id that already exists.
	DuplicateEntity Kind = "DuplicateEntity"
	// BatchSizeExceeded marks a batch request over the configured maximum.
	BatchSizeExceeded Kind = "BatchSizeExceeded"
	// ValidationError marks an out-of-range parameter, e.g. subrequest count.
	ValidationError Kind = "ValidationError"
	// QueryFailed marks a downstream shard returning an error to a fan-out.
	QueryFailed Kind = "QueryFailed"
	// Timeout marks a per-call deadline elapsing.
	Timeout Kind = "Timeout"
	// RpcError marks a transport/framing failure.
	RpcError Kind = "RpcError"
	// Internal marks an unexpected, non-retriable condition (corrupted
	// chunk, impossible variant) that should be logged as fatal and
	// surfaced opaquely.
	Internal Kind = "Internal"
)

// retriable records, per Kind, whether a caller may retry the request
// without changing its arguments. This mirrors the table in spec §7.
var retriable = map[Kind]bool{
	InvalidValue:      false,
	InvalidIdentifier: false,
	EntityNotFound:    false,
	DuplicateEntity:   false,
	BatchSizeExceeded: false,
	ValidationError:   false,
	QueryFailed:       true,
	Timeout:           true,
	RpcError:          true,
	Internal:          false,
}

// Error is the concrete error type returned by the engine and orchestrator.
// It carries a Kind, a human-readable message, and optional structured
// details for the error envelope described in spec §6.
type Error struct {
	Details map[string]any
	cause   error
	Kind    Kind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Retriable reports whether the caller may retry the request unchanged.
func (e *Error) Retriable() bool { return retriable[e.Kind] }

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an existing error, retaining
// it as the Unwrap() cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithDetail attaches a structured detail key/value and returns the same
// Error for chaining at the call site.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, and Internal otherwise — callers should treat unrecognized errors
// as Internal per spec §7's "unexpected" clause.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err's Kind equals kind, walking wrapped errors.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
