/*
errors.go - Centralized error types for the discipline engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is(); structured errors carry context and
  unwrap to their sentinel.

ERROR CATEGORIES:
  1. Validation errors - rejected synchronously, point state unchanged
  2. Batch errors - per-point failures collected in the pass summary,
     never escalated to abort the run
  3. Guard errors - same-day re-run refused without force

SEE ALSO:
  - service.go: Raises validation errors
  - batch.go:   Collects partial failures, raises the same-day guard
  - repair.go:  Raises reset validation errors
*/
package discipline

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPointNotFound is returned when a referenced point doesn't exist.
	ErrPointNotFound = errors.New("point not found")

	// ErrPointExpired is returned when excusing a point that has already
	// expired. Excusal is permitted only while a point is live.
	ErrPointExpired = errors.New("point already expired")

	// ErrPointExcused is returned when mutating a point that was excused.
	// Excused points are permanently out of both expiration pipelines.
	ErrPointExcused = errors.New("point is excused")

	// ErrPointNotExpired is returned when resetting a point that was never
	// expired. Reset exists only to correct erroneous expirations.
	ErrPointNotExpired = errors.New("point is not expired")

	// ErrAlreadyRanToday is returned when a second GBRO sweep is attempted
	// on the same calendar day without force. Expected for retried crons.
	ErrAlreadyRanToday = errors.New("good-behavior sweep already ran today")

	// ErrInvalidViolation is returned for a violation type outside the
	// closed enum.
	ErrInvalidViolation = errors.New("invalid violation type")

	// ErrStoreRequired is returned when an operation needs a capability
	// (transactions, run records) the configured store doesn't provide.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StateError reports an operation rejected because of the point's current
// lifecycle state. Unwraps to the matching sentinel.
type StateError struct {
	PointID PointID
	Op      string // "excuse", "reset"
	Reason  error  // ErrPointExpired, ErrPointExcused, ErrPointNotExpired
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.PointID, e.Reason)
}

func (e *StateError) Unwrap() error { return e.Reason }

// CohortError reports a cohort whose expiration attempt was rolled back.
// Both points remain active; the cohort is retried on the next pass.
type CohortError struct {
	UserID UserID
	Points []PointID
	Err    error
}

func (e *CohortError) Error() string {
	return fmt.Sprintf("cohort for %s not expired (%d points): %v", e.UserID, len(e.Points), e.Err)
}

func (e *CohortError) Unwrap() error { return e.Err }

// GuardError reports the same-day idempotency refusal with the conflicting
// run date. A no-op with a warning, never fatal.
type GuardError struct {
	RunDate time.Time
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("good-behavior sweep already ran on %s; use force to override", e.RunDate.Format("2006-01-02"))
}

func (e *GuardError) Unwrap() error { return ErrAlreadyRanToday }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation reports whether the error is a synchronous rejection of
// invalid input or an invalid state transition.
func IsValidation(err error) bool {
	return errors.Is(err, ErrPointExpired) ||
		errors.Is(err, ErrPointExcused) ||
		errors.Is(err, ErrPointNotExpired) ||
		errors.Is(err, ErrInvalidViolation)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPointNotFound)
}
