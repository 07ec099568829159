package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a conversation id is unknown or has
	// already expired. Expiry is not an error condition: an expired session
	// is indistinguishable from one that never existed.
	ErrNotFound = errors.New("conversation not found")
)

// ValidationError rejects bad creation or turn input (missing context,
// oversized or unsupported file, exceeded request limits). It names the
// violated constraint and is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// CacheError indicates the provider cache for a session is invalid and the
// rebuild attempt failed. The session is left in place, so the caller may
// retry the turn.
type CacheError struct {
	SessionID string
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache for conversation %s is invalid and could not be refreshed", e.SessionID)
}

// UpstreamError wraps a network or parse failure from the provider during a
// completion call. Streaming turns never surface it directly; the relay folds
// it into a terminal error chunk instead.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream error: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
