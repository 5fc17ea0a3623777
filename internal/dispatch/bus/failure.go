package bus

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// FailureKind classifies the terminal failure of a dispatch.
type FailureKind string

const (
	// KindHandlerNotFound: no handler is bound to the message name.
	KindHandlerNotFound FailureKind = "handler_not_found"
	// KindAuthorizationDenied: the authorization gate denied the initiator.
	KindAuthorizationDenied FailureKind = "authorization_denied"
	// KindValidationFailed: structural or business validation reported violations.
	KindValidationFailed FailureKind = "validation_failed"
	// KindHandlerError: the handler surfaced a business-logic failure.
	KindHandlerError FailureKind = "handler_error"
	// KindInternalError: the pipeline itself failed unexpectedly.
	KindInternalError FailureKind = "internal_error"
	// KindCacheBackendError: the cache backend failed. Never terminal: the
	// pipeline recovers it as a miss or skipped store; it appears only in logs.
	KindCacheBackendError FailureKind = "cache_backend_error"
	// KindTimeout: the execution stage exceeded its configured timeout.
	KindTimeout FailureKind = "timeout"
	// KindCancelled: the caller abandoned the dispatch.
	KindCancelled FailureKind = "cancelled"
)

// Failure is the single structured failure a caller receives for a dispatch.
// Exactly one of result or failure is terminal; there are no partial results.
//
// Cache backend errors never appear here: they are recovered locally (treated
// as a miss or skipped store) and only logged.
type Failure struct {
	Kind       FailureKind
	Message    string
	Violations []string
	MessageID  uuid.UUID
	Cause      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap exposes the original cause for errors.Is/As chains, most relevant
// for KindHandlerError where upstream compensation needs the domain error.
func (f *Failure) Unwrap() error { return f.Cause }

// AsFailure extracts the structured failure from a dispatch error.
// Returns nil when err is not a dispatch failure.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return nil
}
