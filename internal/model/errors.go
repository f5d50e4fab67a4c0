package model

import (
	"fmt"
	"time"
)

// ErrorKind is the error taxonomy. Every error surfaced across a venue
// boundary carries one of these so callers can decide retry policy
// without string-matching messages.
type ErrorKind string

const (
	ErrorTransient          ErrorKind = "TRANSIENT"
	ErrorRateLimited        ErrorKind = "RATE_LIMITED"
	ErrorValidation         ErrorKind = "VALIDATION"
	ErrorAuth               ErrorKind = "AUTH"
	ErrorProtocol           ErrorKind = "PROTOCOL"
	ErrorInvariantViolation ErrorKind = "INVARIANT_VIOLATION"
	ErrorTimeout            ErrorKind = "TIMEOUT"
)

// VenueError wraps an underlying error with its taxonomy classification.
// Retryers and the engine branch on Kind, never on Unwrap()'s message.
type VenueError struct {
	Kind ErrorKind
	Err  error

	// RetryAfter is the server-hinted minimum wait before the next attempt
	// (e.g. a 429's Retry-After header), zero if the venue gave no hint.
	// A retryer must wait at least this long even when its own backoff
	// schedule would have retried sooner.
	RetryAfter time.Duration
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *VenueError) Unwrap() error { return e.Err }

// Retryable reports whether the retryer should reattempt the call that
// produced this error, per the taxonomy's default policy. Transient,
// RateLimited, and Timeout are retryable; the caller's should_retry
// predicate may still override this.
func (e *VenueError) Retryable() bool {
	switch e.Kind {
	case ErrorTransient, ErrorRateLimited, ErrorTimeout:
		return true
	default:
		return false
	}
}

func NewVenueError(kind ErrorKind, err error) *VenueError {
	return &VenueError{Kind: kind, Err: err}
}

// NewRateLimitedError builds a RATE_LIMITED VenueError carrying the venue's
// hinted retry delay, so a retryer can honor it instead of guessing.
func NewRateLimitedError(err error, retryAfter time.Duration) *VenueError {
	return &VenueError{Kind: ErrorRateLimited, Err: err, RetryAfter: retryAfter}
}

// InvariantViolation is panicked, never returned, when an entity is asked
// to apply an event that is impossible given its current state — this is
// fatal to the process, since reconciliation cannot heal a code bug. It is
// deliberately not a normal error: callers must not recover and continue as
// if nothing happened, since that would mean the in-memory state has
// silently diverged from what actually happened.
type InvariantViolation struct {
	Entity string
	Detail string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation on %s: %s", v.Entity, v.Detail)
}

// PanicInvariant panics with an InvariantViolation. Used by Order/Position/
// Account.Apply when handed a transition that is not valid for the current
// state — this is a programming error upstream (a venue event routed to the
// wrong order, or a bug in command validation), not a recoverable runtime
// condition.
func PanicInvariant(entity, format string, args ...interface{}) {
	panic(&InvariantViolation{Entity: entity, Detail: fmt.Sprintf(format, args...)})
}
