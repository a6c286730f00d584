package errors

import (
	"errors"
	"fmt"
)

// Kind represents a specific error category for coordination operations.
type Kind string

const (
	// KindStoreUnavailable indicates the session store cannot be reached.
	KindStoreUnavailable Kind = "STORE_UNAVAILABLE"
	// KindAgentUnavailable indicates a downstream agent cannot be reached or timed out.
	KindAgentUnavailable Kind = "AGENT_UNAVAILABLE"
	// KindAgentBadResponse indicates a downstream agent replied with an unexpected status or schema.
	KindAgentBadResponse Kind = "AGENT_BAD_RESPONSE"
	// KindSessionNotFound indicates the requested session or log does not exist.
	KindSessionNotFound Kind = "SESSION_NOT_FOUND"
	// KindAmbiguousTeardown indicates session completion was only partially applied.
	KindAmbiguousTeardown Kind = "AMBIGUOUS_TEARDOWN"
	// KindInvalidArgument indicates invalid input parameters.
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
)

// CoordError represents a structured error for coordination operations.
type CoordError struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *CoordError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CoordError) Unwrap() error {
	return e.Cause
}

// New creates a CoordError without a cause.
func New(kind Kind, message string) *CoordError {
	return &CoordError{Kind: kind, Message: message}
}

// Newf creates a CoordError with a formatted message.
func Newf(kind Kind, format string, args ...any) *CoordError {
	return &CoordError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a CoordError wrapping a cause.
func Wrap(kind Kind, message string, cause error) *CoordError {
	return &CoordError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from an error chain. Errors that never passed
// through this package report an empty Kind so callers can fall back to a
// generic internal error.
func KindOf(err error) Kind {
	var ce *CoordError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
