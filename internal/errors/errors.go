// Package apperrors defines the error taxonomy of the outreach core.
// Every error a service returns is matchable with errors.Is or errors.As.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that carry no extra data.
var (
	// ErrInvalidState marks an operation attempted on a frozen or
	// wrong-state entity. Caller bug; never retried.
	ErrInvalidState = errors.New("invalid state")

	// ErrInsufficientContext marks an unmet business-rule precondition,
	// surfaced to the end user as guidance.
	ErrInsufficientContext = errors.New("insufficient context")

	// ErrGenerationInvalid means the generation capability returned
	// malformed output twice in a row.
	ErrGenerationInvalid = errors.New("generation output invalid")

	// ErrGenerationUnavailable means the generation capability itself
	// failed; surfaced immediately, no automatic retry.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrDispatchConflict means another dispatcher already recorded the
	// send. Treated as success-already-happened, not propagated upward.
	ErrDispatchConflict = errors.New("dispatch conflict")
)

// NotFoundError identifies a missing entity by kind and id.
type NotFoundError struct {
	Entity string
	ID     int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Entity, e.ID)
}

func NewNotFound(entity string, id int) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound reports whether err is a NotFoundError for any entity.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// TransportError wraps a mail delivery failure. The job stays pending and
// is re-attempted on the next sweep, bounded by the scheduler's max-age
// policy.
type TransportError struct {
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transport failed: %s", e.Reason)
}

func (e *TransportError) Unwrap() error { return e.Err }

func NewTransportError(reason string, err error) error {
	return &TransportError{Reason: reason, Err: err}
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
